// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telepathy

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
)

// In the transport layer, a frame's layout is:
//
//	Length(4-bytes uint, little-endian)Payload
const FrameHeaderSize = 4

// DefaultMaxFrameSize is the default maximum payload length.
const DefaultMaxFrameSize = 16 * 1024

var (
	ErrFrameTooLarge = errors.New("telepathy: frame too large")
)

// AppendFrame appends the framed payload to dst.
func AppendFrame(dst []byte, payload []byte) []byte {
	var hdr [FrameHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}

// EncodeFrame returns the framed payload in a fresh buffer.
func EncodeFrame(payload []byte) []byte {
	return AppendFrame(make([]byte, 0, FrameHeaderSize+len(payload)), payload)
}

// accumulator holds received bytes not yet assembled into frames.
//
// Consumed bytes are skipped by a read cursor; the live tail is moved to
// the front only when the consumed prefix is at least as large as the tail,
// so front trimming is amortized O(1).
type accumulator struct {
	buf []byte
	r   int
}

func (a *accumulator) Len() int {
	return len(a.buf) - a.r
}

func (a *accumulator) Write(p []byte) {
	n := a.Len()
	if n == 0 {
		a.buf = a.buf[:0]
		a.r = 0
	}

	if a.r > 0 && len(a.buf)+len(p) > cap(a.buf) {
		if a.r >= n && n+len(p) <= cap(a.buf) {
			copy(a.buf, a.buf[a.r:])
			a.buf = a.buf[:n]
		} else {
			nb := make([]byte, n, 2*(n+len(p)))
			copy(nb, a.buf[a.r:])
			a.buf = nb
		}
		a.r = 0
	}

	a.buf = append(a.buf, p...)
}

// Next extracts the next complete frame. The payload aliases the internal
// buffer and is only valid until the next Write. ok is false when more
// bytes are needed.
func (a *accumulator) Next(maxLen int) (payload []byte, ok bool, err error) {
	if a.Len() < FrameHeaderSize {
		return nil, false, nil
	}

	l := binary.LittleEndian.Uint32(a.buf[a.r:])
	if uint64(l) > uint64(maxLen) {
		return nil, false, ErrFrameTooLarge
	}

	end := a.r + FrameHeaderSize + int(l)
	if end > len(a.buf) {
		return nil, false, nil
	}

	payload = a.buf[a.r+FrameHeaderSize : end]
	a.r = end
	return payload, true, nil
}

// Reset drops the buffered bytes and the backing array.
func (a *accumulator) Reset() {
	a.buf = nil
	a.r = 0
}

type netbufconn struct {
	conn net.Conn
	*bufio.ReadWriter
}

func newNetbufConn(conn net.Conn) netbufconn {
	return netbufconn{
		conn:       conn,
		ReadWriter: bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
	}
}

func (c *netbufconn) Close() error {
	return c.conn.Close()
}

// FrameRW converts a net.Conn to a MessageReadWriter speaking the frame
// protocol. It is the client side counterpart of a Manager.
//
// FrameRW is not safe for concurrent reads nor concurrent writes, one
// reader and one writer may run in parallel.
type FrameRW struct {
	c   netbufconn
	max int
}

// NewFrameRW wraps conn, payloads longer than maxFrameSize are rejected.
// A maxFrameSize <= 0 means DefaultMaxFrameSize.
func NewFrameRW(conn net.Conn, maxFrameSize int) *FrameRW {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &FrameRW{c: newNetbufConn(conn), max: maxFrameSize}
}

func (rw *FrameRW) OnStop() {
	rw.c.Close()
}

// Conn returns the underlying connection.
func (rw *FrameRW) Conn() net.Conn {
	return rw.c.conn
}

func (rw *FrameRW) ReadMessage() (m Message, err error) {
	var hdr [FrameHeaderSize]byte
	if _, err = io.ReadFull(rw.c, hdr[:]); err != nil {
		return
	}

	l := binary.LittleEndian.Uint32(hdr[:])
	if uint64(l) > uint64(rw.max) {
		err = ErrFrameTooLarge
		return
	}

	m = make(Message, l)
	_, err = io.ReadFull(rw.c, m)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return
}

func (rw *FrameRW) WriteMessage(m Message) error {
	if len(m) > rw.max {
		return ErrFrameTooLarge
	}

	var hdr [FrameHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(m)))
	if _, err := rw.c.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := rw.c.Write(m); err != nil {
		return err
	}

	return rw.c.Flush()
}
