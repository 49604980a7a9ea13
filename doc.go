// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package telepathy provides a pooled TCP connection manager.
//
// A Manager accepts up to Capacity clients, every accepted connection is
// bound to a preallocated I/O context which owns one receive and one send
// segment of a single contiguous buffer pool. Nothing is allocated per
// connection besides the bookkeeping and the decoded messages.
//
// On the wire, a message is framed as:
//
//	Length(4-bytes uint, little-endian)Payload
//
// The Handler is notified when a client connects (+1), for every frame it
// sends, and when it disconnects (-1). The events of one connection are
// delivered in order.
//
// Here is a quick example of an echo server.
//
//	type Echo struct{}
//
//	func (Echo) OnClientsChanged(c *telepathy.Conn, delta int) {
//		log.Printf("client %v: %+d", c.ID(), delta)
//	}
//
//	func (Echo) OnData(c *telepathy.Conn, m telepathy.Message) {
//		c.Send(m)
//	}
//
//	func server() {
//		m, err := telepathy.New(telepathy.DefaultConfig(), Echo{})
//		if err != nil {
//			log.Fatal(err)
//		}
//		if err := m.Start(":1337"); err != nil {
//			log.Fatal(err)
//		}
//		defer m.Stop()
//		// ...
//	}
//
// The client side is implemented by the client package, and by FrameRW for
// a plain net.Conn.
package telepathy
