package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRandomTimeRange(t *testing.T) {
	as := require.New(t)

	for i := 0; i < 100; i++ {
		d := RandomTimeRange(time.Second)
		as.GreaterOrEqual(d, time.Second/2)
		as.LessOrEqual(d, time.Second)
	}
	as.Equal(time.Duration(1), RandomTimeRange(1))
	as.Zero(RandomTimeRange(0))
}

func TestBackoff(t *testing.T) {
	as := require.New(t)

	b := &Backoff{Min: 5 * time.Millisecond, Max: 40 * time.Millisecond}
	expected := []time.Duration{5, 10, 20, 40, 40}
	for _, e := range expected {
		d := b.Next()
		as.Equal(e*time.Millisecond, b.Current())
		as.LessOrEqual(d, b.Current())
	}

	b.Reset()
	b.Next()
	as.Equal(5*time.Millisecond, b.Current())
}
