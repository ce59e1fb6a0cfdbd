// Package transform runs the cleansing and enrichment pipeline over a
// document store.
//
// The Pipeline sequences four stages against the destination collection:
//   - provision creates the destination with the asset mapping if it is absent
//   - copy reindexes every source document into the destination
//   - enrich derives risk_level and system_age_years on every document
//   - cleanse deletes documents without a hostname or with an unknown provider
//
// Stages run strictly in order and the first failing stage ends the run.
// Each stage is a single blocking query-scoped request; the store slices the
// work internally. Version conflicts within enrich and cleanse are counted
// and do not stop the stage. Calls that time out are retried with backoff.
package transform
