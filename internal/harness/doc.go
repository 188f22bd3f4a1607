// Package harness runs YAML scenarios against the reducer engine.
//
// A scenario dispatches actions (or applies out-of-band operations) to a
// fresh document of a registered type, records a trace of what each step
// appended to the log, and evaluates assertions on the final document.
//
// # Scenario Format
//
//	name: skip_coalescing
//	description: "Three undos coalesce into one NOOP index"
//	document_type: docreduce/counter
//	steps:
//	  - action: INCREMENT
//	    repeat: 5
//	  - action: UNDO
//	    input: 1
//	  - operation: { type: NOOP, index: 5, skip: 2 }
//	  - action: REDO
//	    input: 2
//	    expect_error: INVALID_REDO
//	assertions:
//	  - type: state
//	    scope: global
//	    expect: { count: 3 }
//	  - type: tail
//	    expect: { type: NOOP, index: 5, skip: 2 }
//
// # Assertion Types
//
//   - state: subset match on a scope's state
//   - name: the document name
//   - revision: the header revision of a scope
//   - log_length: the durable log length of a scope
//   - tail: type, index, skip and error of the last operation of a scope
//   - clipboard: indices of the redo clipboard entries, oldest first
//   - deterministic_replay: replaying the logs twice gives identical output
//   - store_roundtrip: saving and loading through the SQLite store keeps
//     state and logs
//
// # Deterministic Testing
//
// Every run uses testutil.DeterministicClock and testutil.SequentialIDs, so
// traces are identical across runs and can be compared against golden
// files. Traces carry no timestamps or hashes.
package harness
