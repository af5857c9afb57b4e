package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultDelay spaces Alpha Vantage requests for the free tier:
// 5 requests per minute is 1 request every 12 seconds.
const DefaultDelay = 12 * time.Second

// Pacer spaces out provider requests. It is not safe for concurrent use; a
// run fetches its symbols one at a time.
type Pacer struct {
	clock Clock
	delay time.Duration

	// quota is an optional requests-per-minute ceiling on top of the fixed delay
	quota *rate.Limiter
	calls int
}

// NewPacer creates a pacer that sleeps delay between consecutive requests.
// A positive perMinute additionally caps the request rate.
func NewPacer(clock Clock, delay time.Duration, perMinute int) *Pacer {
	if clock == nil {
		clock = SystemClock()
	}
	p := &Pacer{
		clock: clock,
		delay: delay,
	}
	if perMinute > 0 {
		p.quota = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	}
	return p
}

// Wait blocks until the next request may be sent. It is called once before
// every request: the first call returns immediately, every later call sleeps
// for the configured delay first. It returns an error if ctx is done while
// waiting.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.calls > 0 && p.delay > 0 {
		if err := p.clock.Sleep(ctx, p.delay); err != nil {
			return err
		}
	}
	p.calls++

	if p.quota == nil {
		return nil
	}

	now := p.clock.Now()
	r := p.quota.ReserveN(now, 1)
	if d := r.DelayFrom(now); d > 0 {
		if err := p.clock.Sleep(ctx, d); err != nil {
			r.CancelAt(now)
			return err
		}
	}
	return nil
}

// Calls returns the number of times Wait let a request through.
func (p *Pacer) Calls() int {
	return p.calls
}
