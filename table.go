// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telepathy

import (
	"sort"
	"sync"

	"github.com/rcrowley/go-metrics"
)

// connTable maps identifiers to live connections. The active gauge
// follows the table size and is only written under mu.
type connTable struct {
	mu     sync.RWMutex
	conns  map[uint64]*Conn
	active metrics.Gauge
}

func newConnTable(capacity int, active metrics.Gauge) *connTable {
	if active == nil {
		active = metrics.NilGauge{}
	}
	return &connTable{
		conns:  make(map[uint64]*Conn, capacity),
		active: active,
	}
}

func (t *connTable) insert(c *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c.id] = c
	t.active.Update(int64(len(t.conns)))
}

// remove sets the closing flag and removes c, both under the table lock.
// Only the first caller gets true.
func (t *connTable) remove(c *Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c.closing {
		return false
	}
	c.closing = true
	delete(t.conns, c.id)
	t.active.Update(int64(len(t.conns)))
	return true
}

func (t *connTable) get(id uint64) (*Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[id]
	return c, ok
}

// snapshot returns the live connections ordered by identifier.
func (t *connTable) snapshot() []*Conn {
	t.mu.RLock()
	cs := make([]*Conn, 0, len(t.conns))
	for _, c := range t.conns {
		cs = append(cs, c)
	}
	t.mu.RUnlock()

	sort.Slice(cs, func(i, j int) bool { return cs[i].id < cs[j].id })
	return cs
}

func (t *connTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
