package normalize

// applySplits extracts configured nested collections out of each record into
// their own groups and collects the stripped remainders under CoreGroup.
// Rules apply in declaration order. Groups that collect nothing are omitted.
func (n *Normalizer) applySplits(records []RawRecord) Batch {
	batch := Batch{}

	for _, record := range records {
		for _, rule := range n.splits {
			if rule.Object != n.object {
				continue
			}

			value, ok := lookupPath(record, rule.Path)
			if !ok {
				continue
			}

			items, ok := value.([]interface{})
			if !ok {
				// Present but not a collection; leave it for the flattener.
				continue
			}

			for _, item := range items {
				var split RawRecord
				switch v := item.(type) {
				case map[string]interface{}:
					split = v
				default:
					// Scalar items become single-field records keyed by the
					// path leaf, so the value is kept rather than dropped.
					split = RawRecord{pathLeaf(rule.Path): v}
				}

				for _, fk := range rule.Retained {
					if parent, ok := record[fk.Source]; ok {
						split[fk.Target] = parent
					}
				}

				batch[rule.Path] = append(batch[rule.Path], split)
			}

			deletePath(record, rule.Path)
		}

		batch[CoreGroup] = append(batch[CoreGroup], record)
	}

	return batch
}
