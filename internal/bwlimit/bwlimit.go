// Package bwlimit implements a token-bucket bandwidth limiter wrapping
// an io.Writer, the equivalent of rsync's --bwlimit (spec.md SPEC_FULL
// §C, "Bandwidth limiting").
package bwlimit

import (
	"io"
	"time"
)

// sleeper is the subset of time used for the burst wait, overridable in
// tests so they don't take wall-clock time to run.
type sleeper func(time.Duration)

// Limiter wraps an io.Writer, delaying Write calls so the long-run
// average throughput stays at or below the configured rate. It uses a
// simple token bucket: BytesPerSecond tokens are added per second, up to
// a BurstBytes ceiling, and a Write that would overdraw the bucket
// sleeps until enough tokens accrue.
type Limiter struct {
	w io.Writer

	bytesPerSecond float64
	burst          float64

	tokens   float64
	lastFill time.Time

	sleep sleeper
	now   func() time.Time
}

// New creates a Limiter writing through to w at bytesPerSecond, with a
// burst allowance of one second's worth of data.
func New(w io.Writer, bytesPerSecond int64) *Limiter {
	return &Limiter{
		w:              w,
		bytesPerSecond: float64(bytesPerSecond),
		burst:          float64(bytesPerSecond),
		tokens:         float64(bytesPerSecond),
		lastFill:       time.Now(),
		sleep:          time.Sleep,
		now:            time.Now,
	}
}

// Write charges len(p) tokens, sleeps off any resulting deficit (which may
// exceed the burst for a large p), then writes p in full.
func (l *Limiter) Write(p []byte) (int, error) {
	if l.bytesPerSecond <= 0 {
		return l.w.Write(p)
	}

	l.refill()
	l.tokens -= float64(len(p))
	if l.tokens < 0 {
		wait := time.Duration(-l.tokens / l.bytesPerSecond * float64(time.Second))
		l.sleep(wait)
		l.refill()
	}
	return l.w.Write(p)
}

func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastFill).Seconds()
	l.lastFill = now
	l.tokens += elapsed * l.bytesPerSecond
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
}
