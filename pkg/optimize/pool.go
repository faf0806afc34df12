package optimize

import "sync"

// BufferPool recycles byte buffers of a fixed minimum size. The capture path
// produces one I420 buffer per frame at up to 30 fps per viewer; pooling
// keeps that from churning the garbage collector.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a pool handing out buffers of at least size bytes.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		},
	}
}

// Get returns a buffer of exactly n bytes, reusing pooled storage when the
// capacity allows.
func (p *BufferPool) Get(n int) []byte {
	buf := *(p.pool.Get().(*[]byte))
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}

// Put returns a buffer to the pool. Oversized buffers are dropped so one
// high-resolution burst does not pin memory forever.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) < p.size || cap(buf) > p.size*4 {
		return
	}
	buf = buf[:cap(buf)]
	p.pool.Put(&buf)
}
