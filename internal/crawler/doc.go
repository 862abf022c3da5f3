// Package crawler defines the data model and collaborator interfaces shared by
// the content crawler: content-type schemas, entries with their per-locale raw
// values, projected documents, and the providers and index writer the crawl
// consumes. It also declares the typed errors that decide whether a failure
// aborts the run or is logged and skipped.
package crawler
