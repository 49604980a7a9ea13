// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package telepathy

import (
	"github.com/rcrowley/go-metrics"
)

type Statistics struct {
	// connections
	Accepted  int64
	Closed    int64
	Rejected  int64
	Active    int64
	Oversized int64

	// from clients
	ReceivedCount int64
	ReceivedBytes int64

	// to clients
	SentCount int64
	SentBytes int64

	// one-minute moving rates, per second
	ReceivedRate float64
	SentRate     float64

	// pools
	Capacity     int
	IdleContexts int
}

// stats owns the counters of one Manager, registered in its registry.
type stats struct {
	reg metrics.Registry

	accepted  metrics.Counter
	closed    metrics.Counter
	rejected  metrics.Counter
	oversized metrics.Counter
	active    metrics.Gauge

	framesIn  metrics.Meter
	bytesIn   metrics.Meter
	framesOut metrics.Meter
	bytesOut  metrics.Meter
}

func newStats(reg metrics.Registry) *stats {
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &stats{
		reg:       reg,
		accepted:  metrics.GetOrRegisterCounter("conns.accepted", reg),
		closed:    metrics.GetOrRegisterCounter("conns.closed", reg),
		rejected:  metrics.GetOrRegisterCounter("conns.rejected", reg),
		oversized: metrics.GetOrRegisterCounter("frames.oversized", reg),
		active:    metrics.GetOrRegisterGauge("conns.active", reg),
		framesIn:  metrics.GetOrRegisterMeter("frames.in", reg),
		bytesIn:   metrics.GetOrRegisterMeter("bytes.in", reg),
		framesOut: metrics.GetOrRegisterMeter("frames.out", reg),
		bytesOut:  metrics.GetOrRegisterMeter("bytes.out", reg),
	}
}

func (s *stats) stop() {
	s.framesIn.Stop()
	s.bytesIn.Stop()
	s.framesOut.Stop()
	s.bytesOut.Stop()
}

func (s *stats) snapshot() Statistics {
	return Statistics{
		Accepted:      s.accepted.Count(),
		Closed:        s.closed.Count(),
		Rejected:      s.rejected.Count(),
		Active:        s.active.Value(),
		Oversized:     s.oversized.Count(),
		ReceivedCount: s.framesIn.Count(),
		ReceivedBytes: s.bytesIn.Count(),
		SentCount:     s.framesOut.Count(),
		SentBytes:     s.bytesOut.Count(),
		ReceivedRate:  s.framesIn.Rate1(),
		SentRate:      s.framesOut.Rate1(),
	}
}
