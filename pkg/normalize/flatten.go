package normalize

import (
	"strconv"
	"strings"
	"unicode"
)

// Flatten collapses a record's nested structure into a single-level mapping.
// Nested map keys are joined with underscores; list elements are addressed
// by index ("changes_0_type"). Scalars pass through untouched.
func Flatten(record RawRecord) RawRecord {
	flat := make(RawRecord, len(record))
	for key, value := range record {
		flattenValue(flat, key, value)
	}
	return flat
}

func flattenValue(flat RawRecord, prefix string, value interface{}) {
	switch v := value.(type) {
	case map[string]interface{}:
		if len(v) == 0 {
			flat[prefix] = v
			return
		}
		for key, inner := range v {
			flattenValue(flat, prefix+"_"+key, inner)
		}
	case []interface{}:
		if len(v) == 0 {
			flat[prefix] = v
			return
		}
		for i, inner := range v {
			flattenValue(flat, prefix+"_"+strconv.Itoa(i), inner)
		}
	default:
		flat[prefix] = v
	}
}

// Constrict normalizes a name to a URL- and identifier-safe snake_case
// token: camelCase humps become underscores, runs of non-alphanumerics
// collapse to a single underscore, and everything is lowercased.
// "identity-profiles.identities" -> "identity_profiles_identities",
// "formFieldGroups" -> "form_field_groups".
func Constrict(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)

	lastUnderscore := false
	for i, r := range name {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && !lastUnderscore {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if i > 0 && !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	return strings.Trim(b.String(), "_")
}
