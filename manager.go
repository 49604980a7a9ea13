// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telepathy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/someonegg/gox/syncx"
	"golang.org/x/time/rate"
)

var (
	ErrManagerClosed  = errors.New("telepathy: manager closed")
	ErrManagerStarted = errors.New("telepathy: manager already started")

	errUnknownPanic   = errors.New("unknown panic")
	errManagerStopped = errors.New("manager stopped")
)

const maxAcceptDelay = time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger, the default is logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithRegistry registers the statistics in reg instead of a private
// registry.
func WithRegistry(reg metrics.Registry) Option {
	return func(m *Manager) {
		m.reg = reg
	}
}

// Manager accepts TCP clients and pumps length-prefixed frames between
// them and a Handler. All per-connection memory is preallocated by New.
//
// Manager supports concurrently access. A Manager can be started once.
type Manager struct {
	cfg Config
	h   Handler
	log logrus.FieldLogger
	reg metrics.Registry

	bufs    *BufferPool
	ctxs    *ContextPool
	gate    *Gate
	conns   *connTable
	disp    *dispatcher
	stats   *stats
	limiter *rate.Limiter
	nextID  uint64

	mu      sync.Mutex // guards following
	ln      net.Listener
	started bool
	closed  bool

	quitF   context.CancelFunc
	acceptD syncx.DoneChan
	stopD   syncx.DoneChan
	wg      sync.WaitGroup // receive loops
}

// New preallocates the pools for cfg.Capacity connections. Zero numeric
// fields of cfg are taken from DefaultConfig.
func New(cfg Config, h Handler, opts ...Option) (*Manager, error) {
	if h == nil {
		return nil, errors.New("telepathy: nil handler")
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:     cfg,
		h:       h,
		log:     logrus.StandardLogger(),
		acceptD: syncx.NewDoneChan(),
		stopD:   syncx.NewDoneChan(),
	}
	for _, opt := range opts {
		opt(m)
	}

	bufs, err := NewBufferPool(2*cfg.Capacity, cfg.SegmentSize)
	if err != nil {
		return nil, err
	}
	ctxs, err := NewContextPool(bufs, cfg.Capacity)
	if err != nil {
		return nil, err
	}

	m.bufs = bufs
	m.ctxs = ctxs
	m.gate = NewGate(cfg.Capacity)
	m.stats = newStats(m.reg)
	m.reg = m.stats.reg
	m.conns = newConnTable(cfg.Capacity, m.stats.active)
	m.disp = newDispatcher(h, cfg.Dispatchers, cfg.EventQueueSize, m.handlerPanic)
	if cfg.AcceptRate > 0 {
		m.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), cfg.AcceptBurst)
	}

	m.log.WithFields(logrus.Fields{
		"capacity": cfg.Capacity,
		"segment":  cfg.SegmentSize,
	}).Debug("telepathy: pools allocated")
	return m, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Start binds addr and starts accepting. It returns the listen error, and
// ErrManagerStarted or ErrManagerClosed when called twice or after Stop.
func (m *Manager) Start(addr string) error {
	m.mu.Lock()
	err := m.startErr()
	m.mu.Unlock()
	if err != nil {
		return err
	}

	lc := net.ListenConfig{}
	if m.cfg.ReuseAddr {
		lc.Control = reuseAddrControl
	}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		m.log.WithError(err).WithField("addr", addr).Error("telepathy: listen failed")
		return fmt.Errorf("telepathy: listen %s: %w", addr, err)
	}
	return m.serve(ln)
}

// startErr is called with m.mu held.
func (m *Manager) startErr() error {
	if m.closed {
		return ErrManagerClosed
	}
	if m.started {
		return ErrManagerStarted
	}
	return nil
}

// serve starts the accept loop on ln, which is closed by Stop.
func (m *Manager) serve(ln net.Listener) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.startErr(); err != nil {
		ln.Close()
		return err
	}

	var ctx context.Context
	ctx, m.quitF = context.WithCancel(context.Background())

	m.ln = ln
	m.started = true
	m.disp.start()
	go m.accepting(ctx, ln)

	m.log.WithField("addr", ln.Addr().String()).Info("telepathy: listening")
	return nil
}

// Addr returns the listening address, nil before Start.
func (m *Manager) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln == nil {
		return nil
	}
	return m.ln.Addr()
}

// Stop closes the listener and every connection, then waits until the
// last event is handled. Stop must not be called from a Handler.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	started := m.started
	m.mu.Unlock()

	defer m.stopD.SetDone()

	if !started {
		m.stats.stop()
		return
	}

	m.quitF()
	m.ln.Close()
	<-m.acceptD

	for _, c := range m.conns.snapshot() {
		m.closeConn(c, errManagerStopped)
	}
	m.wg.Wait()

	m.disp.stop()
	m.stats.stop()

	m.log.Info("telepathy: stopped")
}

// StopD returns a done channel, it will be signaled when Stop completes.
func (m *Manager) StopD() syncx.DoneChanR {
	return m.stopD.R()
}

// CloseClient closes the connection id. It returns false if the
// connection is unknown or already closing.
func (m *Manager) CloseClient(id uint64) bool {
	c, ok := m.conns.get(id)
	if !ok {
		return false
	}
	return m.closeConn(c, nil)
}

// SendMessage queues m for the connection id.
func (m *Manager) SendMessage(id uint64, msg Message) error {
	c, ok := m.conns.get(id)
	if !ok {
		return ErrConnNotFound
	}
	return c.Send(msg)
}

// Conn returns the live connection id.
func (m *Manager) Conn(id uint64) (*Conn, bool) {
	return m.conns.get(id)
}

// Conns returns the live connections ordered by identifier.
func (m *Manager) Conns() []*Conn {
	return m.conns.snapshot()
}

func (m *Manager) NumConns() int {
	return m.conns.len()
}

func (m *Manager) Statistics() Statistics {
	s := m.stats.snapshot()
	s.Capacity = m.cfg.Capacity
	s.IdleContexts = m.ctxs.Idle()
	return s
}

// Registry returns the metrics registry holding the statistics.
func (m *Manager) Registry() metrics.Registry {
	return m.reg
}

func (m *Manager) accepting(ctx context.Context, ln net.Listener) {
	defer m.acceptD.SetDone()

	var delay time.Duration
	for {
		if err := m.gate.Acquire(ctx); err != nil {
			return
		}
		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				m.gate.Release()
				return
			}
		}

		raw, err := ln.Accept()
		if err != nil {
			m.gate.Release()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}

			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			m.log.WithError(err).Warnf("telepathy: accept failed, retrying in %v", delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		delay = 0

		m.accept(raw)
	}
}

// accept installs raw, the caller holds a gate slot.
func (m *Manager) accept(raw net.Conn) {
	ioc, err := m.ctxs.Pop()
	if err != nil {
		m.log.WithError(err).WithField("remote", raw.RemoteAddr().String()).
			Error("telepathy: no io context, connection dropped")
		raw.Close()
		m.gate.Release()
		m.stats.rejected.Inc(1)
		return
	}

	if tc, ok := raw.(*net.TCPConn); ok {
		tc.SetNoDelay(m.cfg.NoDelay)
	}

	c := newConn(m, atomic.AddUint64(&m.nextID, 1), raw, ioc)
	m.ctxs.bind(ioc, c)
	m.conns.insert(c)

	m.stats.accepted.Inc(1)
	m.log.WithFields(logrus.Fields{
		"conn":   c.id,
		"remote": c.remote.String(),
	}).Debug("telepathy: accepted")

	m.disp.post(event{c: c, delta: +1})

	m.wg.Add(1)
	go c.writing()
	go m.receiving(c)
}

// receiving keeps one read outstanding on c until it fails.
func (m *Manager) receiving(c *Conn) {
	defer m.wg.Done()
	defer m.recycle(c)

	var err error
	defer func() {
		if e := recover(); e != nil {
			m.logPanic(c, e)
			err = errUnknownPanic
		}
		m.closeConn(c, err)
	}()

	buf := c.ioc.Buffer()
	for {
		n, rerr := c.raw.Read(buf)
		if n > 0 {
			if err = m.received(c, buf[:n]); err != nil {
				return
			}
		}
		if rerr != nil {
			err = rerr
			return
		}
	}
}

func (m *Manager) received(c *Conn, p []byte) error {
	m.stats.bytesIn.Mark(int64(len(p)))

	frames, err := c.received(p, m.cfg.MaxFrameSize)
	m.stats.framesIn.Mark(int64(len(frames)))

	// dispatch outside the connection lock, the handler may send.
	for i, f := range frames {
		m.disp.post(event{c: c, m: f})
		frames[i] = nil
	}
	c.frames = frames[:0]

	if err == ErrFrameTooLarge {
		m.stats.oversized.Inc(1)
		m.log.WithField("conn", c.id).Warn("telepathy: frame too large")
	}
	return err
}

// closeConn starts closing c, only the first caller gets true. The
// resources are recycled by the receive loop.
func (m *Manager) closeConn(c *Conn, reason error) bool {
	if !m.conns.remove(c) {
		return false
	}

	c.kill()
	c.stopD.SetDone()

	if tc, ok := c.raw.(*net.TCPConn); ok {
		tc.CloseWrite()
	}
	c.raw.Close()

	entry := m.log.WithField("conn", c.id)
	if reason != nil {
		entry = entry.WithError(reason)
	}
	entry.Debug("telepathy: closed")
	return true
}

// recycle runs once per connection, after the write loop ended.
func (m *Manager) recycle(c *Conn) {
	<-c.writeD

	m.ctxs.Push(c.ioc)
	m.gate.Release()
	m.stats.closed.Inc(1)

	m.disp.post(event{c: c, delta: -1})
}

func (m *Manager) handlerPanic(c *Conn, v interface{}) {
	m.logPanic(c, v)
	m.closeConn(c, errUnknownPanic)
}

func (m *Manager) logPanic(c *Conn, v interface{}) {
	const size = 16 << 10
	buf := make([]byte, size)
	buf = buf[:runtime.Stack(buf, false)]
	m.log.WithField("conn", c.id).Errorf("telepathy: panic: %v\n%s", v, buf)
}
