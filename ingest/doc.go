// Package ingest loads tabular asset records into a document store.
//
// A Loader streams rows from a sequence, groups them into bulk batches and
// submits the batches to a bounded worker pool. Each row becomes one index
// operation keyed by its trimmed hostname, so loading the same input twice
// replaces documents instead of duplicating them.
//
// Item-level rejections do not stop a load: they are returned together with
// the result as a *PartialBatchError. A batch that cannot be submitted at all,
// after retrying timeouts, aborts the load.
package ingest
