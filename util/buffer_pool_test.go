package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferPool(t *testing.T) {
	as := require.New(t)

	p := NewBufferPool(4096)
	as.Equal(4096, p.Size())

	buf := p.Get()
	as.Len(buf, 4096)
	p.Put(buf)
	p.Put(make([]byte, 16))

	as.Panics(func() {
		NewBufferPool(64)
	})
}
