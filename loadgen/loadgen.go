// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loadgen opens many client connections to a telepathy echo server
// and fires synthetic messages at a fixed rate, measuring the echoes.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/someonegg/telepathy"
	"github.com/someonegg/telepathy/client"
	"golang.org/x/time/rate"
)

type Config struct {
	Addr string `yaml:"addr"`
	// Clients is the number of connections.
	Clients int `yaml:"clients"`
	// Rate is the messages per second of every client.
	Rate float64 `yaml:"rate"`
	// Duration bounds the run, 0 means until the context is done.
	Duration telepathy.Duration `yaml:"duration"`
	// WriteQueueSize is the write queue size of every client pump.
	WriteQueueSize int `yaml:"write_queue_size"`
}

func DefaultConfig() Config {
	return Config{
		Addr:           "127.0.0.1:1337",
		Clients:        10,
		Rate:           14,
		WriteQueueSize: 100,
	}
}

func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return errors.New("loadgen: empty addr")
	case c.Clients <= 0:
		return fmt.Errorf("loadgen: clients %d", c.Clients)
	case c.Rate <= 0:
		return fmt.Errorf("loadgen: rate %v", c.Rate)
	case c.WriteQueueSize <= 0:
		return fmt.Errorf("loadgen: write queue size %d", c.WriteQueueSize)
	}
	return nil
}

// Metrics of a run, shared by all clients.
type Metrics struct {
	Sent     metrics.Counter
	Received metrics.Counter
	Errors   metrics.Counter
	Clients  metrics.Gauge
	SendRate metrics.Meter
	Latency  metrics.Timer

	// clients whose pump stopped
	Disconnected metrics.Counter
}

func newMetrics(reg metrics.Registry) *Metrics {
	return &Metrics{
		Sent:     metrics.GetOrRegisterCounter("loadgen.sent", reg),
		Received: metrics.GetOrRegisterCounter("loadgen.received", reg),
		Errors:   metrics.GetOrRegisterCounter("loadgen.errors", reg),
		Clients:  metrics.GetOrRegisterGauge("loadgen.clients", reg),
		SendRate: metrics.GetOrRegisterMeter("loadgen.send_rate", reg),
		Latency:  metrics.GetOrRegisterTimer("loadgen.latency", reg),

		Disconnected: metrics.GetOrRegisterCounter("loadgen.disconnected", reg),
	}
}

type Report struct {
	Clients      int64
	Disconnected int64
	Sent         int64
	Received     int64
	Errors       int64
	SendRate     float64
	// round trip
	LatencyMean time.Duration
	LatencyP99  time.Duration
}

func (r Report) String() string {
	return fmt.Sprintf("clients %d (%d gone), sent %d, received %d, errors %d, %.1f msg/s, rtt mean %v p99 %v",
		r.Clients, r.Disconnected, r.Sent, r.Received, r.Errors, r.SendRate, r.LatencyMean, r.LatencyP99)
}

// Generator runs the load.
type Generator struct {
	cfg Config
	log logrus.FieldLogger
	reg metrics.Registry
	m   *Metrics
}

func New(cfg Config, log logrus.FieldLogger) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	reg := metrics.NewRegistry()
	return &Generator{cfg: cfg, log: log, reg: reg, m: newMetrics(reg)}, nil
}

func (g *Generator) Registry() metrics.Registry {
	return g.reg
}

func (g *Generator) Report() Report {
	l := g.m.Latency.Snapshot()
	return Report{
		Clients:      g.m.Clients.Value(),
		Disconnected: g.m.Disconnected.Count(),
		Sent:         g.m.Sent.Count(),
		Received:     g.m.Received.Count(),
		Errors:       g.m.Errors.Count(),
		SendRate:     g.m.SendRate.Rate1(),
		LatencyMean:  time.Duration(l.Mean()),
		LatencyP99:   time.Duration(l.Percentile(0.99)),
	}
}

// Run connects the clients and sends until ctx is done or the configured
// duration elapses. It fails only if no client could connect.
func (g *Generator) Run(ctx context.Context) error {
	if d := g.cfg.Duration.Duration; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	var (
		wg      sync.WaitGroup
		lastErr error
	)
	for i := 0; i < g.cfg.Clients; i++ {
		lc, err := g.connect(ctx, i)
		if err != nil {
			g.m.Errors.Inc(1)
			g.log.WithError(err).WithField("client", i).Warn("loadgen: connect failed")
			lastErr = err
			continue
		}

		g.m.Clients.Update(g.m.Clients.Value() + 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			lc.run(ctx)
		}()
	}

	if g.m.Clients.Value() == 0 {
		return lastErr
	}

	g.log.WithField("clients", g.m.Clients.Value()).Info("loadgen: running")
	wg.Wait()
	g.m.SendRate.Stop()
	return nil
}

type loadClient struct {
	g    *Generator
	id   int
	pump *client.Pump

	mu    sync.Mutex
	sentT *queue.Queue
}

func (g *Generator) connect(ctx context.Context, id int) (*loadClient, error) {
	lc := &loadClient{g: g, id: id, sentT: queue.New()}
	gone := telepathy.StopNotifierFunc(func() {
		g.m.Disconnected.Inc(1)
	})
	pump, err := client.Dial(ctx, g.cfg.Addr, lc,
		client.WithWriteQueueSize(g.cfg.WriteQueueSize),
		client.WithLogger(g.log.WithField("client", id)),
		client.WithStopNotifier(gone))
	if err != nil {
		return nil, err
	}
	lc.pump = pump
	return lc, nil
}

// Process accounts one echo, echoes come back in sending order.
func (lc *loadClient) Process(ctx context.Context, m telepathy.Message) {
	lc.mu.Lock()
	var sent time.Time
	if lc.sentT.Length() > 0 {
		sent = lc.sentT.Remove().(time.Time)
	}
	lc.mu.Unlock()

	lc.g.m.Received.Inc(1)
	if !sent.IsZero() {
		lc.g.m.Latency.UpdateSince(sent)
	}
}

func (lc *loadClient) run(ctx context.Context) {
	defer func() {
		lc.pump.Stop()
		<-lc.pump.StopD()
	}()

	limiter := rate.NewLimiter(rate.Limit(lc.g.cfg.Rate), 1)
	for n := 0; ; n++ {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if lc.pump.Stopped() {
			lc.g.m.Errors.Inc(1)
			lc.g.log.WithError(lc.pump.Error()).WithField("client", lc.id).Warn("loadgen: client stopped")
			return
		}

		m := telepathy.Message(fmt.Sprint("Message ", n))

		// the echo can not be accounted before its send time is queued.
		lc.mu.Lock()
		err := lc.pump.TryOutput(m)
		if err == nil {
			lc.sentT.Add(time.Now())
		}
		lc.mu.Unlock()

		if err != nil {
			lc.g.m.Errors.Inc(1)
			continue
		}
		lc.g.m.Sent.Inc(1)
		lc.g.m.SendRate.Mark(1)
	}
}
