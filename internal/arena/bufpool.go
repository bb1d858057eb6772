package arena

import "sync"

// defaultReadBufSize covers every fixed-size request payload; larger
// payloads fall back to a fresh allocation in the codec.
const defaultReadBufSize = 1024

// BytePool is a pool of reusable []byte buffers for the per-connection
// service loops, reducing GC pressure from per-packet reads.
type BytePool struct {
	pool sync.Pool
}

// NewBytePool creates a pool whose fresh slices have the given capacity.
func NewBytePool(defaultCap int) *BytePool {
	p := &BytePool{}
	p.pool.New = func() any {
		return make([]byte, 0, defaultCap)
	}
	return p
}

// Get returns a slice of length size, from the pool when possible.
func (p *BytePool) Get(size int) []byte {
	b := p.pool.Get().([]byte)
	if cap(b) < size {
		p.pool.Put(b)
		return make([]byte, size)
	}
	b = b[:size]
	clear(b)
	return b
}

// Put returns a slice to the pool for reuse.
func (p *BytePool) Put(b []byte) {
	if b == nil {
		return
	}
	p.pool.Put(b[:0])
}
