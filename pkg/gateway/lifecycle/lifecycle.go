// Package lifecycle holds the drain flag shared by the gateway handlers.
// Once draining, new browser sessions and calls are refused and /readyz
// reports 503 while live sessions finish.
package lifecycle

import (
	"sync/atomic"
	"time"
)

type Lifecycle struct {
	draining atomic.Bool
	since    atomic.Int64
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	if !draining {
		l.draining.Store(false)
		l.since.Store(0)
		return
	}
	if l.draining.CompareAndSwap(false, true) {
		l.since.Store(time.Now().UnixNano())
	}
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// DrainingSince reports when draining began.
func (l *Lifecycle) DrainingSince() (time.Time, bool) {
	if l == nil || !l.draining.Load() {
		return time.Time{}, false
	}
	ns := l.since.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}
