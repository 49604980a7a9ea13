// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telepathy

import (
	"context"
)

// Gate is a counting semaphore bounding the accepted connections.
type Gate struct {
	slots chan struct{}
}

// NewGate returns a gate with capacity free slots.
func NewGate(capacity int) *Gate {
	if capacity <= 0 {
		panic("telepathy: gate capacity must be positive")
	}
	return &Gate{slots: make(chan struct{}, capacity)}
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot if one is free.
func (g *Gate) TryAcquire() bool {
	select {
	case g.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release returns a slot. Releasing a slot that was never acquired panics.
func (g *Gate) Release() {
	select {
	case <-g.slots:
	default:
		panic("telepathy: gate released more than acquired")
	}
}

// InUse returns the number of held slots.
func (g *Gate) InUse() int {
	return len(g.slots)
}

// Cap returns the capacity.
func (g *Gate) Cap() int {
	return cap(g.slots)
}
