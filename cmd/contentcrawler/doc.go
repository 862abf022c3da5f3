// Package main hosts the content crawler entrypoint.
//
// Architecture overview:
//   - Content store: contentstore.Snapshot serves the content types and entries of an exported space, with one level
//     of link expansion, through the crawler.SchemaProvider and crawler.EntryProvider interfaces.
//   - Orchestrator: registers the configured vocabularies, validates tag targets, then crawls every configured content
//     type in priority order. Each content type gets a freshly generated index mapping, archived to the configured
//     BlobStore (memory/local/GCS), before its entries are projected and bulk-written to Elasticsearch.
//   - Tagging: entries linking to tag-target content types enqueue append-if-absent tag updates that run on a bounded
//     worker pool next to the crawl. The run drains the queue before completing, optionally replaying updates whose
//     target document did not exist yet.
//   - Progress & fanout: run, content-type, batch and tag events flow through the non-blocking progress Hub to log,
//     Prometheus and run-ledger sinks. A compact Pub/Sub notification is published per indexed content type when a
//     topic is configured.
//   - Ops server: when enabled, /healthz, /readyz, /metrics and the read-only /v1/runs ledger endpoints are served for
//     the lifetime of the run.
//
// Quick checklist:
//   - Configure via file (--config) or env vars with the CRAWLER_ prefix, e.g. CRAWLER_CONTENT_STORE_SNAPSHOT_PATH,
//     CRAWLER_ELASTICSEARCH_ADDRESSES, CRAWLER_LEDGER_DSN, CRAWLER_PUBSUB_TOPIC_NAME.
//   - Crawl: go run ./cmd/contentcrawler crawl --config config.yaml [--reindex]
//   - Inspect a mapping: go run ./cmd/contentcrawler mapping --config config.yaml project
package main
