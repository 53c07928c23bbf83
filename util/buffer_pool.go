package util

import (
	"net/http/httputil"

	pool "github.com/libp2p/go-buffer-pool"
)

const minBufferSize = 512

// BufferPool hands out fixed size copy buffers from the shared libp2p pool.
type BufferPool struct {
	size int
}

var _ httputil.BufferPool = (*BufferPool)(nil)

// NewBufferPool panics on sizes below 512 bytes.
func NewBufferPool(size int) *BufferPool {
	if size < minBufferSize {
		panic("util: buffer pool size too small")
	}
	return &BufferPool{
		size: size,
	}
}

func (b *BufferPool) Size() int {
	return b.size
}

func (b *BufferPool) Get() []byte {
	return pool.Get(b.size)
}

func (b *BufferPool) Put(buf []byte) {
	if cap(buf) < b.size {
		return
	}
	pool.Put(buf[:b.size])
}
