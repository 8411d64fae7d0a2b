package core

import "sync/atomic"

// joinOrderCounter is the only state shared across all client handles.
var joinOrderCounter atomic.Int64

// nextJoinOrder issues a process-wide strictly increasing join order.
// Values are never reused, even when handles are constructed concurrently.
func nextJoinOrder() int64 {
	return joinOrderCounter.Add(1)
}
