// Package store provides the durable transcript archive.
//
// The archive is an append-only ledger of every line the handoff pipeline
// routes, keyed by customer conversation id. It is deliberately not the
// router's source of truth: the in-memory transcript in package conversation
// serves live commands like "history", while the archive exists for audit
// and replay after a restart.
//
// The implementation is SQLite (modernc.org/sqlite, pure Go) with WAL mode
// and automatic schema creation.
package store
