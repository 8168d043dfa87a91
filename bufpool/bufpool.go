/*Package bufpool provides bounded pools of large image buffers.

Acquisition produces buffers of two classes, raw data and preview, each with
its own outstanding-count limit.  Acquire blocks until a slot frees; this
blocking is the sole backpressure mechanism bounding the microscope's memory
use, so there is no unbounded queue anywhere upstream of it.
*/
package bufpool

import "sync"

// Shape is the logical (time, slice, channel, height, width) extent of a
// buffer.  Collapsed axes are 1, never 0.
type Shape struct {
	T, Z, C, Y, X int
}

// Pixels returns the number of pixels a buffer of this shape holds.
func (s Shape) Pixels() int {
	return s.T * s.Z * s.C * s.Y * s.X
}

// Bytes returns the resident size of a buffer of this shape.  Pixels are
// 16-bit unsigned.
func (s Shape) Bytes() int64 {
	return 2 * int64(s.Pixels())
}

// Buffer is an exclusively owned block of pixel memory.  The task that
// acquired it owns it until it is released; buffers are never aliased across
// tasks concurrently.
type Buffer struct {
	Shape Shape
	Data  []uint16

	pool *Pool
}

// Pool is a bounded pool of buffers of one class.
type Pool struct {
	mu          sync.Mutex
	cond        *sync.Cond
	max         int
	outstanding int
}

// New returns a pool allowing at most max outstanding buffers.
func New(max int) *Pool {
	p := &Pool{max: max}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Acquire blocks while the outstanding count is at the configured maximum,
// then returns a zero-initialized buffer and counts it as outstanding.
func (p *Pool) Acquire(shape Shape) *Buffer {
	p.mu.Lock()
	for p.outstanding >= p.max {
		p.cond.Wait()
	}
	p.outstanding++
	p.mu.Unlock()
	return &Buffer{Shape: shape, Data: make([]uint16, shape.Pixels()), pool: p}
}

// Release returns a buffer's slot to the pool and wakes one blocked Acquire.
// Releasing nil is a no-op, which keeps error paths simple.
func (p *Pool) Release(b *Buffer) {
	if b == nil {
		return
	}
	b.pool = nil
	b.Data = nil
	p.mu.Lock()
	p.outstanding--
	p.mu.Unlock()
	p.cond.Signal()
}

// Outstanding returns the current number of live buffers.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// Max returns the configured maximum.
func (p *Pool) Max() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max
}

// SetMax reconfigures the maximum outstanding count.  Raising it wakes
// blocked acquirers; lowering it only affects future Acquires, live buffers
// are never revoked.
func (p *Pool) SetMax(max int) {
	p.mu.Lock()
	p.max = max
	p.mu.Unlock()
	p.cond.Broadcast()
}
