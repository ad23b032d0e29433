package session

import "time"

// AudioLimiter is a token bucket over inbound audio frames and bytes. A nil
// limiter allows everything.
type AudioLimiter struct {
	now        func() time.Time
	frameRate  int64
	frames     int64
	byteRate   int64
	bytes      int64
	burst      int64
	lastRefill time.Time
}

// NewAudioLimiter allows fps frames and bps bytes per second, with burst
// seconds of headroom. It returns nil when both rates are zero.
func NewAudioLimiter(now func() time.Time, fps int, bps int64, burstSeconds int) *AudioLimiter {
	if fps <= 0 && bps <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	if burstSeconds <= 0 {
		burstSeconds = 1
	}
	l := &AudioLimiter{
		now:        now,
		frameRate:  int64(max(fps, 0)),
		byteRate:   max(bps, 0),
		burst:      int64(burstSeconds),
		lastRefill: now(),
	}
	l.frames = l.frameRate * l.burst
	l.bytes = l.byteRate * l.burst
	return l
}

// Allow reports whether a frame of n bytes fits, consuming tokens if so.
func (l *AudioLimiter) Allow(n int) bool {
	if l == nil {
		return true
	}
	l.refill()
	n = max(n, 0)
	if l.frameRate > 0 && l.frames < 1 {
		return false
	}
	if l.byteRate > 0 && l.bytes < int64(n) {
		return false
	}
	if l.frameRate > 0 {
		l.frames--
	}
	if l.byteRate > 0 {
		l.bytes -= int64(n)
	}
	return true
}

func (l *AudioLimiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill)
	if elapsed <= 0 {
		return
	}
	l.frames = topUp(l.frames, l.frameRate, l.burst, elapsed)
	l.bytes = topUp(l.bytes, l.byteRate, l.burst, elapsed)
	l.lastRefill = now
}

func topUp(tokens, rate, burst int64, elapsed time.Duration) int64 {
	if rate <= 0 {
		return tokens
	}
	tokens += elapsed.Nanoseconds() * rate / int64(time.Second)
	return min(tokens, rate*burst)
}
