// Package engine implements the docreduce reducer pipeline.
//
// The engine turns (document, action) into a new document. It never
// mutates its input and performs no I/O.
//
// ARCHITECTURE:
//
// Dispatch Pipeline:
// 1. Base actions are checked against the CUE schema
// 2. UNDO is rewritten into a NOOP carrying a skip; REDO pops the clipboard
// 3. PRUNE rebuilds the scope log around a LOAD_STATE checkpoint
// 4. A pending skip is resolved by replaying the garbage-collected view
// 5. The operation is appended and the header bumped
// 6. SET_NAME and LOAD_STATE update the header; other actions run the
//    document type's reducer on a working copy of the scope state
// 7. The resulting scope state is hashed and attachments are merged
//
// Skip Protocol:
// An operation with skip k voids the k operations before its index when
// the log is replayed. The durable log keeps every entry for audit;
// oplog.GarbageCollect produces the collapsed view replay folds over.
//
// Failure Model:
// Protocol misuse (schema, ordering, undo/redo preconditions) returns a
// *Error and no document. A reducer failure is recorded on the operation
// (Error set, Skip 0, empty Hash) and the document is returned normally
// with the pre-dispatch state.
//
// Determinism:
// Time and operation IDs come from the injected Clock and IDGenerator.
// Replay reuses stored timestamps, so replaying a log twice yields
// identical documents.
package engine
