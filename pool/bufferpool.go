// Package pool
// Author: momentics <momentics@gmail.com>
//
// Allocation-amortizing pool of fixed-size byte slices. Adapted from the
// teacher's pool.SyncPool[T] (pool/objpool.go), a thin sync.Pool wrapper
// parameterized over T, narrowed here to []byte. Its one user is ws.Engine,
// which copies a Ping's payload into a pooled buffer when building the
// automatic Pong reply; the stream stack does not use it, and
// per-connection read/write buffers are not pooled.
package pool

import "sync"

// BytePool hands out []byte slices of a fixed size and recycles them.
type BytePool struct {
	size int
	pool sync.Pool
}

// NewBytePool creates a pool of buffers of the given size.
func NewBytePool(size int) *BytePool {
	return &BytePool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				return make([]byte, size)
			},
		},
	}
}

// Get returns a buffer of the pool's fixed size. Its contents are not
// zeroed between uses.
func (p *BytePool) Get() []byte {
	return p.pool.Get().([]byte)
}

// Put returns buf to the pool. buf must have been obtained from Get and
// must not be retained by the caller afterwards. Buffers of the wrong size
// are dropped rather than corrupting the pool.
func (p *BytePool) Put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	p.pool.Put(buf[:p.size])
}
