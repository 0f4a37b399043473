package normalize

// applyFilters strips configured nested objects from a record in place.
// For each matching rule whose field is present: non-null retained inner
// fields are promoted to the top level as "field_inner", then the nested
// field is removed whether or not it was null. Applying the pass twice is a
// no-op since the field is gone after the first application.
func (n *Normalizer) applyFilters(record RawRecord) {
	for _, rule := range n.filters {
		if rule.Object != n.object {
			continue
		}

		value, ok := record[rule.Field]
		if !ok {
			continue
		}

		if nested, ok := value.(map[string]interface{}); ok && nested != nil {
			for _, inner := range rule.Retained {
				if v, ok := nested[inner]; ok {
					record[rule.Field+"_"+inner] = v
				}
			}
		}

		delete(record, rule.Field)
	}
}
