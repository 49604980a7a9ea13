// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telepathy

import (
	"errors"
	"sync"
)

var (
	ErrPoolExhausted = errors.New("telepathy: io context pool exhausted")
)

// IOContext is a reusable per-connection operation handle.
//
// It owns one receive segment of the buffer pool for its whole lifetime and
// leases the paired send segment to the connection's write loop. While idle
// its connection binding is nil.
type IOContext struct {
	id   int
	seg  int
	buf  []byte
	sbuf []byte

	idle bool
	conn *Conn
}

// ID returns the context's index in its pool.
func (c *IOContext) ID() int {
	return c.id
}

// Buffer returns the receive segment.
func (c *IOContext) Buffer() []byte {
	return c.buf
}

// SendBuffer returns the send segment.
func (c *IOContext) SendBuffer() []byte {
	return c.sbuf
}

// Conn returns the connection currently served, nil if idle.
func (c *IOContext) Conn() *Conn {
	return c.conn
}

// ContextPool is a fixed stack of preallocated IOContexts.
//
// ContextPool supports concurrently access.
type ContextPool struct {
	mu   sync.Mutex
	all  []*IOContext
	free []*IOContext
}

// NewContextPool creates n contexts over bp. Context i receives into
// segment i and sends from segment n+i, so bp must hold at least 2n segments.
func NewContextPool(bp *BufferPool, n int) (*ContextPool, error) {
	if n <= 0 || bp.Segments() < 2*n {
		return nil, ErrInvalidPoolSize
	}

	p := &ContextPool{
		all:  make([]*IOContext, n),
		free: make([]*IOContext, 0, n),
	}
	for i := 0; i < n; i++ {
		c := &IOContext{id: i, idle: true}
		bp.Assign(c, i)
		c.sbuf = bp.Segment(n + i)
		p.all[i] = c
	}
	// pop from the tail, hand out context 0 first.
	for i := n - 1; i >= 0; i-- {
		p.free = append(p.free, p.all[i])
	}
	return p, nil
}

// Pop removes one idle context.
func (p *ContextPool) Pop() (*IOContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		return nil, ErrPoolExhausted
	}
	c := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	c.idle = false
	return c, nil
}

// Push resets the binding of c and returns it to the idle set. Pushing an
// idle context again is a no-op.
func (p *ContextPool) Push(c *IOContext) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c.idle {
		return
	}
	c.idle = true
	c.conn = nil
	p.free = append(p.free, c)
}

// Idle returns the number of contexts in the pool.
func (p *ContextPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Cap returns the number of preallocated contexts.
func (p *ContextPool) Cap() int {
	return len(p.all)
}

// bind attaches a popped context to c.
func (p *ContextPool) bind(ioc *IOContext, c *Conn) {
	p.mu.Lock()
	ioc.conn = c
	p.mu.Unlock()
}

// Bound returns the number of contexts serving a connection.
func (p *ContextPool) Bound() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, c := range p.all {
		if !c.idle && c.conn != nil {
			n++
		}
	}
	return n
}
