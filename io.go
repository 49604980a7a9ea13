// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telepathy

// Message is one frame payload.
type Message []byte

type MessageReader interface {
	ReadMessage() (m Message, err error)
}

type MessageWriter interface {
	WriteMessage(m Message) error
}

type MessageReadWriter interface {
	MessageReader
	MessageWriter
}

type StopNotifier interface {
	OnStop()
}

type StopNotifierFunc func()

func (f StopNotifierFunc) OnStop() {
	f()
}

// Handler receives the events of a Manager.
//
// Events of one connection are delivered in order from a single dispatch
// goroutine: first OnClientsChanged(c, +1), then OnData for every decoded
// frame, finally OnClientsChanged(c, -1). Events of different connections
// may be delivered concurrently. The handler owns m and may retain it.
type Handler interface {
	OnClientsChanged(c *Conn, delta int)
	OnData(c *Conn, m Message)
}

// HandlerFuncs adapts ordinary functions to a Handler, nil fields are
// skipped.
type HandlerFuncs struct {
	ClientsChanged func(c *Conn, delta int)
	Data           func(c *Conn, m Message)
}

func (h HandlerFuncs) OnClientsChanged(c *Conn, delta int) {
	if h.ClientsChanged != nil {
		h.ClientsChanged(c, delta)
	}
}

func (h HandlerFuncs) OnData(c *Conn, m Message) {
	if h.Data != nil {
		h.Data(c, m)
	}
}
