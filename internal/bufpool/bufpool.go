// Package bufpool recycles byte slices for RESP response encoding.
// Generalized from the teacher's BytePool (memory.go): buffers grow as
// needed and are reset to zero length before reuse rather than being
// reallocated on every write batch.
package bufpool

import "sync"

const maxPooledCap = 64 * 1024

// Pool hands out []byte buffers sized for one connection's response batch
// and reclaims them once the caller is done encoding into them.
type Pool struct {
	pool sync.Pool
}

// New returns a Pool whose buffers start at a 4KiB capacity.
func New() *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any {
				return make([]byte, 0, 4096)
			},
		},
	}
}

// Get returns a zero-length buffer, reused from the pool when available.
func (p *Pool) Get() []byte {
	return p.pool.Get().([]byte)[:0]
}

// Put returns buf to the pool. Buffers that grew past maxPooledCap are
// dropped instead of pooled, so one oversized response can't pin a large
// allocation in the pool indefinitely.
func (p *Pool) Put(buf []byte) {
	if cap(buf) <= maxPooledCap {
		p.pool.Put(buf[:0])
	}
}
