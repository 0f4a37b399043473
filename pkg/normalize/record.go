// Package normalize reshapes dynamically-shaped CRM API records into flat
// relational record groups. Records have no fixed schema; everything here
// operates structurally over a generic key-value tree (string keys, values
// of scalar, nested map or list).
//
// Normalization is two passes driven by declarative rule tables:
//
//  1. Filter pass: duplicated nested objects are stripped from each record,
//     optionally promoting selected inner fields to the top level first.
//  2. Split pass: named nested collections are extracted into their own
//     record groups, carrying configured parent fields along as foreign
//     keys. What remains of each record forms the "core" group.
package normalize

import "sort"

// RawRecord is one dynamically-shaped API record. Keys and nesting vary by
// object type and even across records of the same type.
type RawRecord = map[string]interface{}

// CoreGroup is the group name for the stripped remainder of source records.
const CoreGroup = "core"

// Batch maps a group name (CoreGroup or a split rule's nested path) to the
// flat records collected for that group. Groups that collected no records
// are never present.
type Batch map[string][]RawRecord

// Groups returns the batch's group names in lexical order.
func (b Batch) Groups() []string {
	groups := make([]string, 0, len(b))
	for group := range b {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	return groups
}

// lookupPath resolves a nested path inside a record. A path is first tried
// as a literal top-level key; otherwise each dot-separated segment descends
// one level of nested maps.
func lookupPath(record RawRecord, path string) (interface{}, bool) {
	if v, ok := record[path]; ok {
		return v, true
	}

	segments := splitPath(path)
	if len(segments) < 2 {
		return nil, false
	}

	var current interface{} = record
	for _, seg := range segments {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// deletePath removes a nested path from a record, preferring the literal
// top-level key when present. When the leaf lives in a nested map the leaf
// is removed and any parent maps the removal emptied are pruned, so core
// records never carry vestigial empty containers.
func deletePath(record RawRecord, path string) {
	if _, ok := record[path]; ok {
		delete(record, path)
		return
	}

	segments := splitPath(path)
	if len(segments) < 2 {
		return
	}

	type level struct {
		parent map[string]interface{}
		key    string
	}
	levels := make([]level, 0, len(segments)-1)

	var current interface{} = record
	for _, seg := range segments[:len(segments)-1] {
		m, ok := current.(map[string]interface{})
		if !ok {
			return
		}
		current, ok = m[seg]
		if !ok {
			return
		}
		levels = append(levels, level{parent: m, key: seg})
	}

	m, ok := current.(map[string]interface{})
	if !ok {
		return
	}
	delete(m, segments[len(segments)-1])

	for i := len(levels) - 1; i >= 0; i-- {
		inner, ok := levels[i].parent[levels[i].key].(map[string]interface{})
		if !ok || len(inner) > 0 {
			break
		}
		delete(levels[i].parent, levels[i].key)
	}
}

// pathLeaf returns the final segment of a dotted path
func pathLeaf(path string) string {
	segments := splitPath(path)
	return segments[len(segments)-1]
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segments = append(segments, path[start:i])
			start = i + 1
		}
	}
	return append(segments, path[start:])
}
