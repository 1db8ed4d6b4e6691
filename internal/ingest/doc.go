// Package ingest turns crawled item trees into relational rows: it resolves authors to
// internal user ids, then persists the forest level by level so every row's foreign keys
// were assigned by an earlier level.
package ingest
