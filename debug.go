// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telepathy

import (
	"fmt"
	"io"
	"sync"
)

// MessageDump is a debugging helper, it implements the MessageReadWriter
// interface and provides message dump function.
//
// The dump format is:
//
//	R|W:MessageSize\nMessage\n\n
type MessageDump struct {
	RW   MessageReadWriter
	Dump io.Writer

	// Filter can be nil. If nil, dump all messages.
	Filter func(m Message, read bool) bool
}

func (d *MessageDump) needDump(m Message, read bool) bool {
	if d.Filter != nil {
		return d.Filter(m, read)
	}
	return true
}

func (d *MessageDump) ReadMessage() (m Message, err error) {
	m, err = d.RW.ReadMessage()
	if err != nil {
		return
	}

	if !d.needDump(m, true) {
		return
	}

	fmt.Fprintf(d.Dump, "R:%v\n", len(m))
	d.Dump.Write(m)
	fmt.Fprintf(d.Dump, "\n\n")

	return
}

func (d *MessageDump) WriteMessage(m Message) (err error) {
	err = d.RW.WriteMessage(m)
	if err != nil {
		return
	}

	if !d.needDump(m, false) {
		return
	}

	fmt.Fprintf(d.Dump, "W:%v\n", len(m))
	d.Dump.Write(m)
	fmt.Fprintf(d.Dump, "\n\n")

	return
}

// HandlerDump wraps a Handler and dumps the events it receives.
//
// The dump format is:
//
//	+|-:ConnID\n
//	R:ConnID:MessageSize\nMessage\n\n
type HandlerDump struct {
	H    Handler
	Dump io.Writer

	// Filter can be nil. If nil, dump all messages.
	Filter func(c *Conn, m Message) bool

	mu sync.Mutex
}

func (d *HandlerDump) OnClientsChanged(c *Conn, delta int) {
	d.mu.Lock()
	if delta > 0 {
		fmt.Fprintf(d.Dump, "+:%v\n", c.ID())
	} else {
		fmt.Fprintf(d.Dump, "-:%v\n", c.ID())
	}
	d.mu.Unlock()

	d.H.OnClientsChanged(c, delta)
}

func (d *HandlerDump) OnData(c *Conn, m Message) {
	if d.Filter == nil || d.Filter(c, m) {
		d.mu.Lock()
		fmt.Fprintf(d.Dump, "R:%v:%v\n", c.ID(), len(m))
		d.Dump.Write(m)
		fmt.Fprintf(d.Dump, "\n\n")
		d.mu.Unlock()
	}

	d.H.OnData(c, m)
}
