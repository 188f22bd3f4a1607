// Package ir provides the value, action, operation and document types
// shared by every docreduce package.
//
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers
//   - State hashes are computed over canonical JSON only
//   - All JSON tags use snake_case
//   - Timestamps are ISO-8601 UTC strings with millisecond precision
package ir
