// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telepathy

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"time"
)

type mockMRW struct {
	rsus chan bool
	rcnt int
	rmax int

	wsus chan bool
	wcnt int
	wmax int

	// length:Message
	b bytes.Buffer
}

func (rw *mockMRW) OnStop() {
	if rw.rsus != nil {
		close(rw.rsus)
	}
	if rw.wsus != nil {
		close(rw.wsus)
	}
}

func (rw *mockMRW) ReadMessage() (m Message, err error) {
	if rw.rsus != nil {
		<-rw.rsus
	}

	if rw.rmax > 0 && rw.rcnt >= rw.rmax {
		err = io.EOF
		return
	}

	rw.rcnt++
	return []byte(fmt.Sprint("m", rw.rcnt)), nil
}

func (rw *mockMRW) WriteMessage(m Message) error {
	if rw.wsus != nil {
		<-rw.wsus
	}

	if rw.wmax > 0 && rw.wcnt >= rw.wmax {
		return io.ErrClosedPipe
	}

	rw.wcnt++
	rw.b.WriteString(fmt.Sprint(len(m)))
	rw.b.WriteString(":")
	rw.b.Write(m)
	return nil
}

type mockNetConn struct {
	bytes.Buffer
}

func (c *mockNetConn) Close() error {
	return nil
}

func (c *mockNetConn) LocalAddr() net.Addr {
	return &net.TCPAddr{}
}

func (c *mockNetConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{}
}

func (c *mockNetConn) SetDeadline(t time.Time) error {
	return nil
}

func (c *mockNetConn) SetReadDeadline(t time.Time) error {
	return nil
}

func (c *mockNetConn) SetWriteDeadline(t time.Time) error {
	return nil
}
