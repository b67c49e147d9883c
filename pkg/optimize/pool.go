package optimize

import "sync"

// BytePool reuses fixed-capacity byte buffers. The blur pump allocates
// one buffer per captured frame; pooling keeps that off the GC.
type BytePool struct {
	pool sync.Pool
	size int
}

// NewBytePool creates a pool handing out buffers of the given capacity.
func NewBytePool(size int) *BytePool {
	return &BytePool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				b := make([]byte, 0, size)
				return &b
			},
		},
	}
}

// Get returns an empty buffer with the pool's capacity.
func (p *BytePool) Get() []byte {
	buf := p.pool.Get().(*[]byte)
	return (*buf)[:0]
}

// Put returns a buffer to the pool. Buffers grown past the pool size are
// dropped so the pool never holds oversized memory.
func (p *BytePool) Put(b []byte) {
	if cap(b) > p.size {
		return
	}
	b = b[:0]
	p.pool.Put(&b)
}
