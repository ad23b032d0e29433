package voice

import (
	"context"
	"time"
)

const (
	// baseCharsPerSecond is the assumed speaking speed at rate 0.
	baseCharsPerSecond = 12.5
	// pacingSlack is added after each browser segment.
	pacingSlack = 100 * time.Millisecond
	// PhoneGap separates sentences on a phone call.
	PhoneGap = 250 * time.Millisecond
)

// EstimateDuration guesses how long text takes to speak at a profile rate
// in [-50, 50]. Speed scales by (1 - rate/100).
func EstimateDuration(text string, rate int) time.Duration {
	factor := 1.0 - float64(rate)/100
	if factor <= 0 {
		factor = 0.01
	}
	secs := float64(len(text)) / (baseCharsPerSecond * factor)
	return time.Duration(secs * float64(time.Second))
}

// Pacer holds back the next segment until the previous one has had time to
// play. It is the only backpressure on outbound audio.
type Pacer struct {
	// Sleep blocks for d or until ctx ends. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// Slack is added to every estimate.
	Slack time.Duration
}

// NewPacer returns a Pacer using the wall clock.
func NewPacer() *Pacer {
	return &Pacer{Sleep: sleepCtx, Slack: pacingSlack}
}

// Wait blocks for the estimated playback time of text.
func (p *Pacer) Wait(ctx context.Context, text string, rate int) error {
	return p.sleep(ctx, EstimateDuration(text, rate)+p.Slack)
}

// Gap blocks for a fixed interval.
func (p *Pacer) Gap(ctx context.Context, d time.Duration) error {
	return p.sleep(ctx, d)
}

func (p *Pacer) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep == nil {
		return sleepCtx(ctx, d)
	}
	return p.Sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
