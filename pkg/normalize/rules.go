package normalize

// FieldMapping copies a parent record field into every record split off from
// it, renamed to Target. This is the foreign-key link between a sub-table
// record and its parent core record.
type FieldMapping struct {
	Source string
	Target string
}

// SplitRule declares that for records of Object, the nested collection at
// Path is extracted into its own group named after Path, with each retained
// parent field copied into every extracted item.
type SplitRule struct {
	Object   string
	Path     string
	Retained []FieldMapping
}

// FilterRule declares that the nested object at Field must be removed from
// records of Object, after promoting any retained inner fields to the top
// level under a "field_inner" name.
type FilterRule struct {
	Object   string
	Field    string
	Retained []string
}

// DefaultSplitRules is the static sub-table layout for the supported CRM
// objects. Declaration order is preserved during application.
var DefaultSplitRules = []SplitRule{
	{Object: "contacts", Path: "form-submissions",
		Retained: []FieldMapping{{Source: "vid", Target: "vid"}}},
	{Object: "contacts", Path: "identity-profiles.identities",
		Retained: []FieldMapping{{Source: "addedAt", Target: "addedAt"}}},
	{Object: "contacts", Path: "merge-audits",
		Retained: []FieldMapping{{Source: "vid", Target: "vid"}}},
	{Object: "contacts", Path: "merged-vids",
		Retained: []FieldMapping{{Source: "vid", Target: "vid"}}},
	{Object: "contacts", Path: "list-memberships"},
	{Object: "deals", Path: "associations.associatedVids",
		Retained: []FieldMapping{{Source: "dealId", Target: "deal_id"}}},
	{Object: "deals", Path: "associations.associatedCompanyIds",
		Retained: []FieldMapping{{Source: "dealId", Target: "deal_id"}}},
	{Object: "deals", Path: "associations.associatedDealIds",
		Retained: []FieldMapping{{Source: "dealId", Target: "deal_id"}}},
	{Object: "deal_pipelines", Path: "stages",
		Retained: []FieldMapping{{Source: "pipelineId", Target: "pipeline_id"}}},
	{Object: "forms", Path: "formFieldGroups",
		Retained: []FieldMapping{{Source: "guid", Target: "form_id"}}},
	{Object: "lists", Path: "filters"},
	{Object: "owners", Path: "remoteList"},
	{Object: "timeline", Path: "changes",
		Retained: []FieldMapping{
			{Source: "timestamp", Target: "timestamp"},
			{Source: "recipient", Target: "recipient"},
		}},
	{Object: "workflows", Path: "personaTagIds",
		Retained: []FieldMapping{{Source: "id", Target: "workflow_id"}}},
	{Object: "workflows", Path: "contactListIds",
		Retained: []FieldMapping{{Source: "id", Target: "workflow_id"}}},
}

// DefaultFilterRules is empty for the supported object set: none of the CRM
// objects carry a nested duplicate that has to be stripped. The mechanism is
// still wired so deployments can inject rules per object.
var DefaultFilterRules = []FilterRule{}

// Normalizer applies a fixed rule set to records of one object type.
type Normalizer struct {
	object  string
	filters []FilterRule
	splits  []SplitRule
}

// New creates a Normalizer for object using the default rule tables.
func New(object string) *Normalizer {
	return NewWithRules(object, DefaultFilterRules, DefaultSplitRules)
}

// NewWithRules creates a Normalizer with explicit rule tables.
func NewWithRules(object string, filters []FilterRule, splits []SplitRule) *Normalizer {
	return &Normalizer{object: object, filters: filters, splits: splits}
}

// Normalize runs both passes over records and returns the grouped result.
// Records are transformed in place by the filter pass and consumed by the
// split pass.
func (n *Normalizer) Normalize(records []RawRecord) Batch {
	for _, record := range records {
		n.applyFilters(record)
	}
	return n.applySplits(records)
}
