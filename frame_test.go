// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telepathy

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func TestEncodeFrame(test *testing.T) {
	f := EncodeFrame([]byte("ping"))
	if !bytes.Equal(f, []byte{4, 0, 0, 0, 'p', 'i', 'n', 'g'}) {
		test.Fatal("encode", f)
	}

	f = EncodeFrame(nil)
	if !bytes.Equal(f, []byte{0, 0, 0, 0}) {
		test.Fatal("encode empty", f)
	}

	f = AppendFrame(f, []byte("a"))
	if !bytes.Equal(f, []byte{0, 0, 0, 0, 1, 0, 0, 0, 'a'}) {
		test.Fatal("append", f)
	}
}

func TestAccumulatorSplit(test *testing.T) {
	var a accumulator

	a.Write([]byte{4, 0})
	if _, ok, err := a.Next(DefaultMaxFrameSize); ok || err != nil {
		test.Fatal("partial header")
	}

	a.Write([]byte{0, 0, 'p', 'i'})
	if _, ok, err := a.Next(DefaultMaxFrameSize); ok || err != nil {
		test.Fatal("partial payload")
	}

	a.Write([]byte{'n', 'g'})
	m, ok, err := a.Next(DefaultMaxFrameSize)
	if !ok || err != nil || string(m) != "ping" {
		test.Fatal("complete frame", m, ok, err)
	}
	if a.Len() != 0 {
		test.Fatal("residue", a.Len())
	}
}

func TestAccumulatorBatch(test *testing.T) {
	var a accumulator

	var in []byte
	in = AppendFrame(in, []byte("a"))
	in = AppendFrame(in, nil)
	in = AppendFrame(in, []byte("bc"))
	in = append(in, 9, 0) // start of the next header
	a.Write(in)

	var got []string
	for {
		m, ok, err := a.Next(DefaultMaxFrameSize)
		if err != nil {
			test.Fatal(err)
		}
		if !ok {
			break
		}
		got = append(got, string(m))
	}

	if len(got) != 3 || got[0] != "a" || got[1] != "" || got[2] != "bc" {
		test.Fatal("batch", got)
	}
	if a.Len() != 2 {
		test.Fatal("residue", a.Len())
	}
}

func TestAccumulatorCompact(test *testing.T) {
	var a accumulator

	// Many small writes, each consumed but for a short tail.
	for i := 0; i < 1000; i++ {
		a.Write(EncodeFrame([]byte("hello")))
		a.Write([]byte{3})
		m, ok, err := a.Next(DefaultMaxFrameSize)
		if !ok || err != nil || string(m) != "hello" {
			test.Fatal("frame", i, m, ok, err)
		}
		a.Write([]byte{0, 0, 0, 'x', 'y', 'z'})
		m, ok, err = a.Next(DefaultMaxFrameSize)
		if !ok || err != nil || string(m) != "xyz" {
			test.Fatal("tail frame", i, m, ok, err)
		}
	}
	if a.Len() != 0 {
		test.Fatal("residue", a.Len())
	}
	if cap(a.buf) > 64 {
		test.Fatal("buffer grew", cap(a.buf))
	}
}

func TestAccumulatorOversized(test *testing.T) {
	var a accumulator

	var hdr [FrameHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[:], 17)
	a.Write(hdr[:])

	if _, _, err := a.Next(16); err != ErrFrameTooLarge {
		test.Fatal("oversized", err)
	}
	if _, ok, err := a.Next(17); ok || err != nil {
		test.Fatal("within limit")
	}
}

func TestFrameRWRead(test *testing.T) {
	c := &mockNetConn{}
	rw := NewFrameRW(c, 8)

	binary.Write(&c.Buffer, binary.LittleEndian, uint32(2))
	c.Buffer.WriteString("m1")

	m, err := rw.ReadMessage()
	if string(m) != "m1" || err != nil {
		test.Fatal("frame io: read normal")
	}

	binary.Write(&c.Buffer, binary.LittleEndian, uint32(0))
	m, err = rw.ReadMessage()
	if len(m) != 0 || err != nil {
		test.Fatal("frame io: read empty")
	}

	binary.Write(&c.Buffer, binary.LittleEndian, uint32(9))
	_, err = rw.ReadMessage()
	if err != ErrFrameTooLarge {
		test.Fatal("frame io: read too large", err)
	}

	c.Buffer.Reset()
	binary.Write(&c.Buffer, binary.LittleEndian, uint32(5))
	c.Buffer.WriteString("m1")
	_, err = rw.ReadMessage()
	if err != io.ErrUnexpectedEOF {
		test.Fatal("frame io: read truncated", err)
	}

	_, err = rw.ReadMessage()
	if err != io.EOF {
		test.Fatal("frame io: read eof", err)
	}
}

func TestFrameRWWrite(test *testing.T) {
	c := &mockNetConn{}
	rw := NewFrameRW(c, 8)

	err := rw.WriteMessage([]byte("m1"))
	if err != nil {
		test.Fatal(err)
	}

	if !bytes.Equal(c.Bytes(), EncodeFrame([]byte("m1"))) {
		test.Fatal("frame io: write wrong format", c.Bytes())
	}

	m, err := rw.ReadMessage()
	if err != nil {
		test.Fatal(err)
	}
	if string(m) != "m1" {
		test.Fatal("frame io: write wrong format")
	}

	if err := rw.WriteMessage(make([]byte, 9)); err != ErrFrameTooLarge {
		test.Fatal("frame io: write too large", err)
	}
}
