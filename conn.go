// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telepathy

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/someonegg/gox/syncx"
)

var (
	ErrConnClosed    = errors.New("telepathy: connection closed")
	ErrConnNotFound  = errors.New("telepathy: connection not found")
	ErrSendQueueFull = errors.New("telepathy: send queue full")
)

// Conn is an accepted client connection.
//
// Conn supports concurrently access.
type Conn struct {
	id       uint64
	raw      net.Conn
	remote   net.Addr
	connTime time.Time

	m   *Manager
	ioc *IOContext

	// guarded by the connection table lock
	closing bool

	mu    sync.Mutex // guards following
	acc   accumulator
	dead  bool
	sendQ *queue.Queue

	sendS  chan struct{}
	stopD  syncx.DoneChan
	writeD syncx.DoneChan

	// owned by the receive loop
	frames []Message
}

func newConn(m *Manager, id uint64, raw net.Conn, ioc *IOContext) *Conn {
	return &Conn{
		id:       id,
		raw:      raw,
		remote:   raw.RemoteAddr(),
		connTime: time.Now(),
		m:        m,
		ioc:      ioc,
		sendQ:    queue.New(),
		sendS:    make(chan struct{}, 1),
		stopD:    syncx.NewDoneChan(),
		writeD:   syncx.NewDoneChan(),
	}
}

// ID returns the identifier, unique within the Manager.
func (c *Conn) ID() uint64 {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.remote
}

// LocalAddr returns the local address.
func (c *Conn) LocalAddr() net.Addr {
	return c.raw.LocalAddr()
}

// ConnectTime returns the time the connection was accepted.
func (c *Conn) ConnectTime() time.Time {
	return c.connTime
}

// Closed reports whether the connection is closing or closed.
func (c *Conn) Closed() bool {
	return c.stopD.R().Done()
}

// StopD returns a done channel, it will be signaled when the connection
// starts closing.
func (c *Conn) StopD() syncx.DoneChanR {
	return c.stopD.R()
}

// Close closes the connection, it returns false if it was already closing.
func (c *Conn) Close() bool {
	return c.m.closeConn(c, nil)
}

// Send queues m for sending. It is a no-op returning ErrConnClosed once the
// connection is closing. Frames of one connection are written in the order
// of the Send calls.
func (c *Conn) Send(m Message) error {
	if len(m) > c.m.cfg.MaxFrameSize {
		return ErrFrameTooLarge
	}
	pkt := EncodeFrame(m)

	c.mu.Lock()
	if c.dead {
		c.mu.Unlock()
		return ErrConnClosed
	}
	if c.sendQ.Length() >= c.m.cfg.SendQueueSize {
		c.mu.Unlock()
		return ErrSendQueueFull
	}
	c.sendQ.Add(pkt)
	c.mu.Unlock()

	select {
	case c.sendS <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of queued frames.
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendQ.Length()
}

func (c *Conn) writing() {
	defer c.writeD.SetDone()
	defer func() {
		if e := recover(); e != nil {
			c.m.logPanic(c, e)
			c.m.closeConn(c, errUnknownPanic)
		}
	}()

	sbuf := c.ioc.SendBuffer()
	for {
		select {
		case <-c.stopD:
			return
		case <-c.sendS:
		}

		for {
			out, count, size := c.fill(sbuf)
			if out == nil {
				break
			}
			if _, err := c.raw.Write(out); err != nil {
				c.m.closeConn(c, err)
				return
			}
			c.m.stats.framesOut.Mark(int64(count))
			c.m.stats.bytesOut.Mark(int64(size))
		}
	}
}

// fill dequeues frames, coalescing them into sbuf while they fit. A frame
// larger than sbuf is returned alone.
func (c *Conn) fill(sbuf []byte) (out []byte, count, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead {
		return
	}

	n := 0
	for c.sendQ.Length() > 0 {
		pkt := c.sendQ.Peek().([]byte)
		if n+len(pkt) > len(sbuf) {
			if n == 0 {
				c.sendQ.Remove()
				return pkt, 1, len(pkt) - FrameHeaderSize
			}
			break
		}
		n += copy(sbuf[n:], pkt)
		c.sendQ.Remove()
		count++
		size += len(pkt) - FrameHeaderSize
	}

	if n == 0 {
		return
	}
	return sbuf[:n], count, size
}

// received appends p to the accumulator and extracts the complete frames.
// Frames decoded before a protocol violation are still returned.
func (c *Conn) received(p []byte, maxLen int) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dead {
		return nil, ErrConnClosed
	}

	c.acc.Write(p)

	frames := c.frames[:0]
	for {
		payload, ok, err := c.acc.Next(maxLen)
		if err != nil {
			return frames, err
		}
		if !ok {
			return frames, nil
		}
		m := make(Message, len(payload))
		copy(m, payload)
		frames = append(frames, m)
	}
}

// kill marks the connection dead and drops its buffered state.
func (c *Conn) kill() {
	c.mu.Lock()
	c.dead = true
	c.acc.Reset()
	for c.sendQ.Length() > 0 {
		c.sendQ.Remove()
	}
	c.mu.Unlock()
}
