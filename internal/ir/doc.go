// Package ir defines the value and event types shared by every evstore layer.
//
// ir imports nothing internal. Key constraints:
//   - No float values anywhere; numbers are int64 so encodings are bit-exact
//   - Objects encode with RFC 8785 key order, strings NFC normalized
//   - Events are ordered by Seq, a per-store logical clock, never wall time
//   - All JSON tags use snake_case
package ir
