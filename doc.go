// Package hublift extracts CRM objects from a cursor-paginated HTTP API and
// lands them in object storage as newline-delimited JSON blobs.
//
// An extraction run walks one logical object's endpoint to exhaustion,
// following the API's continuation flags and cursor feedback. Raw records
// are normalized on the way out: declarative filter rules strip duplicated
// nested objects, and split rules extract nested collections into their own
// record groups with foreign keys back to the parent. The stripped remainder
// of each record forms the "core" group. Every group becomes its own blob,
// flattened to a single level with snake_case keys.
//
// Long walks flush intermediate batches every N pages and checkpoint the
// pagination cursor under a run-scoped key, so an interrupted run can resume
// where it stopped instead of starting over.
//
// The packages compose bottom-up:
//
//   - pkg/hubspot: object catalog, endpoint resolution, the authenticated
//     API client, and the pagination engine
//   - pkg/normalize: filter/split rules, flattening, and name constriction
//   - pkg/sink: NDJSON serialization and S3 blob output
//   - pkg/checkpoint: run-scoped cursor storage
//   - pkg/extract: run orchestration, including the campaign and
//     company-membership fan-outs
//   - cmd/hublift: the CLI entrypoint
package hublift
