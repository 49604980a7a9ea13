// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telepathy

import (
	"errors"
)

var (
	ErrInvalidPoolSize = errors.New("telepathy: invalid pool size")
)

// BufferPool is one contiguous block sliced into fixed-size segments.
//
// The block is allocated once, segments are never resized and never move, so
// handing them out to I/O contexts does not allocate nor fragment the heap.
type BufferPool struct {
	block       []byte
	segments    int
	segmentSize int
}

// NewBufferPool allocates segments × segmentSize bytes.
func NewBufferPool(segments, segmentSize int) (*BufferPool, error) {
	if segments <= 0 || segmentSize <= 0 {
		return nil, ErrInvalidPoolSize
	}
	if segments > maxInt/segmentSize {
		return nil, ErrInvalidPoolSize
	}
	return &BufferPool{
		block:       make([]byte, segments*segmentSize),
		segments:    segments,
		segmentSize: segmentSize,
	}, nil
}

const maxInt = int(^uint(0) >> 1)

// Segments returns the number of segments.
func (p *BufferPool) Segments() int {
	return p.segments
}

// SegmentSize returns the length of every segment.
func (p *BufferPool) SegmentSize() int {
	return p.segmentSize
}

// Segment returns the i-th segment. Its capacity is clipped to its length,
// so an append on it reallocates instead of spilling into the next one.
func (p *BufferPool) Segment(i int) []byte {
	if i < 0 || i >= p.segments {
		panic("telepathy: segment index out of range")
	}
	off := i * p.segmentSize
	return p.block[off : off+p.segmentSize : off+p.segmentSize]
}

// Assign binds the i-th segment to c as its receive buffer.
func (p *BufferPool) Assign(c *IOContext, i int) {
	c.seg = i
	c.buf = p.Segment(i)
}
