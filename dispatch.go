// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telepathy

import (
	"sync"
)

type event struct {
	c     *Conn
	delta int
	m     Message
}

// dispatcher delivers events to the handler. Events are hashed by the
// connection identifier, so one connection always lands on the same
// goroutine and its events keep their order.
type dispatcher struct {
	h       Handler
	qs      []chan event
	wg      sync.WaitGroup
	onPanic func(c *Conn, e interface{})
}

func newDispatcher(h Handler, n, queueSize int, onPanic func(*Conn, interface{})) *dispatcher {
	d := &dispatcher{
		h:       h,
		qs:      make([]chan event, n),
		onPanic: onPanic,
	}
	for i := range d.qs {
		d.qs[i] = make(chan event, queueSize)
	}
	return d
}

func (d *dispatcher) start() {
	d.wg.Add(len(d.qs))
	for _, q := range d.qs {
		go d.running(q)
	}
}

// post blocks while the target queue is full.
func (d *dispatcher) post(e event) {
	d.qs[e.c.id%uint64(len(d.qs))] <- e
}

// stop drains the queues and waits the goroutines. No post is allowed
// after stop.
func (d *dispatcher) stop() {
	for _, q := range d.qs {
		close(q)
	}
	d.wg.Wait()
}

func (d *dispatcher) running(q chan event) {
	defer d.wg.Done()
	for e := range q {
		d.handle(e)
	}
}

func (d *dispatcher) handle(e event) {
	defer func() {
		if v := recover(); v != nil {
			d.onPanic(e.c, v)
		}
	}()

	if e.delta != 0 {
		d.h.OnClientsChanged(e.c, e.delta)
	} else {
		d.h.OnData(e.c, e.m)
	}
}
