package api

import (
	"sync/atomic"
	"time"
)

var (
	lastTimestamp int64

	// clock is the wall clock used for created/updated stamps and board views.
	clock = time.Now
)

// nextTimestamp returns a strictly increasing nanosecond stamp for events.
func nextTimestamp() int64 {
	for {
		now := clock().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}
