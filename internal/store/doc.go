// Package store provides SQLite-backed durable storage for documents.
//
// A document is persisted as:
//   - documents: header, initial snapshot, current state and clipboard
//   - revisions: per-scope header revision
//   - operations: per-scope durable logs, one row per log position
//   - attachments: content-addressed blobs shared between documents
//
// # Append-only logs
//
// SaveDocument only inserts the positions a scope log gained since the
// last save. A log whose stored prefix no longer matches (after a prune)
// is rewritten for that scope only.
//
// # Deterministic reads
//
// Every query orders by position (or id COLLATE BINARY for listings), so
// reads are stable across runs and replays.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Values are stored as canonical JSON produced by ir.MarshalCanonical.
package store
