// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package client provides the client side of telepathy: a message-pump
// which reads and writes frames parallelly and continuously over one
// connection.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/someonegg/gox/syncx"
	"github.com/someonegg/telepathy"
)

var (
	errUnknownPanic = errors.New("unknown panic")
)

const DefaultWriteQueueSize = 100

// Handler is the message processor.
//
// Process should complete the message processing as soon as possible, and
// it is not valid to access the message after the Process call.
type Handler interface {
	Process(ctx context.Context, m telepathy.Message)
}

// The HandlerFunc type is an adapter to allow the use of
// ordinary functions as message handlers.
type HandlerFunc func(ctx context.Context, m telepathy.Message)

// Process calls f(ctx, m).
func (f HandlerFunc) Process(ctx context.Context, m telepathy.Message) {
	f(ctx, m)
}

type Statistics struct {
	// from MessageReadWriter
	ReadCount int64
	ReadBytes int64

	// to MessageReadWriter
	WrittenCount int64
	WrittenBytes int64

	// accepted by Output and TryOutput
	OutputCount int64
}

type options struct {
	writeQueueSize int
	maxFrameSize   int
	log            logrus.FieldLogger
	panicLogF      func(interface{})
	notifiers      []telepathy.StopNotifier
}

type Option func(*options)

// WithWriteQueueSize sets how many messages Output can queue ahead of the
// connection, the default is DefaultWriteQueueSize.
func WithWriteQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.writeQueueSize = n
		}
	}
}

// WithMaxFrameSize bounds the messages in both directions. Output rejects
// a larger message with telepathy.ErrFrameTooLarge.
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		o.maxFrameSize = n
	}
}

// WithLogger is optional, the default is logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithPanicLog replaces the default panic log function.
func WithPanicLog(f func(panicV interface{})) Option {
	return func(o *options) {
		o.panicLogF = f
	}
}

// WithStopNotifier adds sn to the notifiers called once the pump is
// stopping, after the message readwriter's own OnStop.
func WithStopNotifier(sn telepathy.StopNotifier) Option {
	return func(o *options) {
		o.notifiers = append(o.notifiers, sn)
	}
}

func newOptions(opts []Option) options {
	o := options{
		writeQueueSize: DefaultWriteQueueSize,
		log:            logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Pump represents a message-pump, one loop reads messages into the
// Handler and another writes the queued output.
//
// Pump supports concurrently access.
type Pump struct {
	rw   telepathy.MessageReadWriter
	h    Handler
	opts options
	wQ   chan telepathy.Message

	quitF   context.CancelFunc
	errOnce sync.Once
	err     error
	loops   sync.WaitGroup
	stopD   syncx.DoneChan

	stat Statistics
}

// NewPump allocates and returns a new Pump.
//
// If rw implementes the StopNotifier interface, it will be called first
// when the pump is stopping.
func NewPump(rw telepathy.MessageReadWriter, h Handler, opts ...Option) *Pump {
	o := newOptions(opts)
	if sn, ok := rw.(telepathy.StopNotifier); ok {
		o.notifiers = append([]telepathy.StopNotifier{sn}, o.notifiers...)
	}

	p := &Pump{
		rw:    rw,
		h:     h,
		opts:  o,
		wQ:    make(chan telepathy.Message, o.writeQueueSize),
		stopD: syncx.NewDoneChan(),
	}
	if p.opts.panicLogF == nil {
		p.opts.panicLogF = p.logPanic
	}
	return p
}

// Dial connects to a telepathy server and returns a started pump. The
// connection is closed when the pump stops.
func Dial(ctx context.Context, addr string, h Handler, opts ...Option) (*Pump, error) {
	o := newOptions(opts)
	if o.maxFrameSize <= 0 {
		o.maxFrameSize = telepathy.DefaultMaxFrameSize
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", addr, err)
	}

	closed := telepathy.StopNotifierFunc(func() {
		o.log.WithField("remote", addr).Debug("client: disconnected")
	})

	opts = append(opts, WithMaxFrameSize(o.maxFrameSize), WithStopNotifier(closed))
	p := NewPump(telepathy.NewFrameRW(conn, o.maxFrameSize), h, opts...)
	p.Start(ctx)
	return p, nil
}

// The default panic log function.
func (p *Pump) logPanic(v interface{}) {
	const size = 16 << 10
	buf := make([]byte, size)
	buf = buf[:runtime.Stack(buf, false)]
	p.opts.log.Errorf("client: pump panic: %v\n%s", v, buf)
}

// Start will start the working loops, they stop when parent is done.
func (p *Pump) Start(parent context.Context) {
	if parent == nil {
		parent = context.Background()
	}

	var ctx context.Context
	ctx, p.quitF = context.WithCancel(parent)

	p.loops.Add(2)
	go p.run(ctx, p.reading)
	go p.run(ctx, p.writing)
	go p.ending(ctx)
}

// run runs one loop, the first loop ending with an error stops the pump.
func (p *Pump) run(ctx context.Context, loop func(context.Context) error) {
	defer p.loops.Done()

	var err error
	defer func() {
		if e := recover(); e != nil {
			p.opts.panicLogF(e)
			if perr, ok := e.(error); ok {
				err = perr
			} else {
				err = errUnknownPanic
			}
		}
		p.fail(ctx, err)
	}()

	err = loop(ctx)
}

// fail records err unless the pump is already stopping, and stops it.
func (p *Pump) fail(ctx context.Context, err error) {
	p.errOnce.Do(func() {
		if ctx.Err() == nil {
			p.err = err
		}
		p.quitF()
	})
}

func (p *Pump) ending(ctx context.Context) {
	defer p.stopD.SetDone()

	<-ctx.Done()

	// unblocks the loops.
	for _, sn := range p.opts.notifiers {
		p.notify(sn)
	}
	p.loops.Wait()
}

func (p *Pump) notify(sn telepathy.StopNotifier) {
	defer func() {
		if e := recover(); e != nil {
			p.opts.panicLogF(e)
		}
	}()
	sn.OnStop()
}

func (p *Pump) reading(ctx context.Context) error {
	for ctx.Err() == nil {
		m, err := p.rw.ReadMessage()
		if err != nil {
			return err
		}
		atomic.AddInt64(&p.stat.ReadCount, 1)
		atomic.AddInt64(&p.stat.ReadBytes, int64(len(m)))

		p.h.Process(ctx, m)
	}
	return nil
}

func (p *Pump) writing(ctx context.Context) error {
	for {
		var m telepathy.Message
		select {
		case <-ctx.Done():
			return nil
		case m = <-p.wQ:
		}

		if err := p.rw.WriteMessage(m); err != nil {
			return err
		}
		atomic.AddInt64(&p.stat.WrittenCount, 1)
		atomic.AddInt64(&p.stat.WrittenBytes, int64(len(m)))
	}
}

// Stop requests to stop the pump, the working loops will stop asynchronously.
func (p *Pump) Stop() {
	p.quitF()
}

// StopD returns a done channel, it will be signaled when the pump is stopped.
func (p *Pump) StopD() syncx.DoneChanR {
	return p.stopD.R()
}

func (p *Pump) Stopped() bool {
	return p.stopD.R().Done()
}

// Error returns the error which stopped the pump, nil if it was stopped
// by Stop or its context. It can only be called after the pump stopped.
func (p *Pump) Error() error {
	return p.err
}

func (p *Pump) check(m telepathy.Message) error {
	if p.Stopped() {
		return telepathy.ErrConnClosed
	}
	if p.opts.maxFrameSize > 0 && len(m) > p.opts.maxFrameSize {
		return telepathy.ErrFrameTooLarge
	}
	return nil
}

// Output puts the message to the write queue. It returns
// telepathy.ErrConnClosed once the pump stopped, telepathy.ErrFrameTooLarge
// for a message above the max frame size, and ctx.Err() if ctx is done
// first.
func (p *Pump) Output(ctx context.Context, m telepathy.Message) error {
	if err := p.check(m); err != nil {
		return err
	}

	select {
	case p.wQ <- m:
		atomic.AddInt64(&p.stat.OutputCount, 1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopD:
		return telepathy.ErrConnClosed
	}
}

// TryOutput is Output without waiting, it fails with
// telepathy.ErrSendQueueFull when the write queue is full.
func (p *Pump) TryOutput(m telepathy.Message) error {
	if err := p.check(m); err != nil {
		return err
	}

	select {
	case p.wQ <- m:
		atomic.AddInt64(&p.stat.OutputCount, 1)
		return nil
	default:
		return telepathy.ErrSendQueueFull
	}
}

func (p *Pump) Statistics() Statistics {
	return Statistics{
		ReadCount:    atomic.LoadInt64(&p.stat.ReadCount),
		ReadBytes:    atomic.LoadInt64(&p.stat.ReadBytes),
		WrittenCount: atomic.LoadInt64(&p.stat.WrittenCount),
		WrittenBytes: atomic.LoadInt64(&p.stat.WrittenBytes),
		OutputCount:  atomic.LoadInt64(&p.stat.OutputCount),
	}
}
