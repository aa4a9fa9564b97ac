package transport

import (
	"sync/atomic"
	"time"
)

// atomic64 stores a time.Time as a UnixNano int64 for lock-free reads from
// the heartbeat checker while the receive loop updates it on every frame.
type atomic64 struct {
	nanos atomic.Int64
}

func (a *atomic64) store(t time.Time) { a.nanos.Store(t.UnixNano()) }

func (a *atomic64) load() time.Time { return time.Unix(0, a.nanos.Load()) }
