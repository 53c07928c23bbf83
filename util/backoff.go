package util

import (
	"math/rand"
	"time"
)

// RandomTimeRange returns time.Duration between [interval/2, interval] randomly
func RandomTimeRange(interval time.Duration) time.Duration {
	if interval < 2 {
		return interval
	}
	half := interval / 2
	return half + time.Duration(rand.Int63n(int64(interval-half)+1))
}

// Backoff hands out delays that double from Min up to Max on every call to
// Next, jittered with RandomTimeRange. The zero value is not usable.
type Backoff struct {
	Min     time.Duration
	Max     time.Duration
	current time.Duration
}

func (b *Backoff) Next() time.Duration {
	switch {
	case b.current == 0:
		b.current = b.Min
	case b.current < b.Max:
		b.current *= 2
	}
	if b.current > b.Max {
		b.current = b.Max
	}
	return RandomTimeRange(b.current)
}

// Current is the delay before jitter of the last call to Next.
func (b *Backoff) Current() time.Duration {
	return b.current
}

func (b *Backoff) Reset() {
	b.current = 0
}
