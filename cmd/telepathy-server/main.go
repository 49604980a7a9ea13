// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command telepathy-server runs an echo server on a telepathy Manager.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/someonegg/telepathy"
	"github.com/someonegg/telepathy/internal/logx"
	"github.com/someonegg/telepathy/admin"
)

type echo struct {
	log logrus.FieldLogger
}

func (h echo) OnClientsChanged(c *telepathy.Conn, delta int) {
	h.log.WithFields(logrus.Fields{
		"conn":   c.ID(),
		"remote": c.RemoteAddr().String(),
		"delta":  delta,
	}).Info("clients changed")
}

func (h echo) OnData(c *telepathy.Conn, m telepathy.Message) {
	if err := c.Send(m); err != nil {
		h.log.WithError(err).WithField("conn", c.ID()).Debug("echo dropped")
	}
}

// report logs the throughput since the previous tick.
func report(ctx context.Context, m *telepathy.Manager, interval time.Duration, log logrus.FieldLogger) {
	t := time.NewTicker(interval)
	defer t.Stop()

	last := m.Statistics()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		s := m.Statistics()
		msgs := s.ReceivedCount - last.ReceivedCount
		kbps := float64(s.ReceivedBytes-last.ReceivedBytes) / 1024 / interval.Seconds()
		last = s

		log.WithFields(logrus.Fields{
			"clients":  s.Active,
			"messages": msgs,
			"kb_s":     kbps,
		}).Infof("%d messages, %.2f KB/s", msgs, kbps)
	}
}

func main() {
	addr := flag.String("addr", ":1337", "Listen address")
	configFile := flag.String("config", "", "YAML configuration file")
	capacity := flag.Int("capacity", 0, "Max concurrent clients (overrides config)")
	adminAddr := flag.String("admin", "", "Admin HTTP address, empty disables")
	interval := flag.Duration("report", 2*time.Second, "Throughput report interval")
	dump := flag.Bool("dump", false, "Dump received frames to stderr")
	debug := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	log := logx.New(*debug)

	cfg := telepathy.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = telepathy.LoadConfig(*configFile); err != nil {
			log.WithError(err).Fatal("config")
		}
	}
	if *capacity > 0 {
		cfg.Capacity = *capacity
	}

	var h telepathy.Handler = echo{log: log}
	if *dump {
		h = &telepathy.HandlerDump{H: h, Dump: os.Stderr}
	}

	m, err := telepathy.New(cfg, h, telepathy.WithLogger(log))
	if err != nil {
		log.WithError(err).Fatal("new manager")
	}
	if err := m.Start(*addr); err != nil {
		log.WithError(err).Fatal("start")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *interval > 0 {
		go report(ctx, m, *interval, log)
	}

	var as *admin.Server
	if *adminAddr != "" {
		as = admin.New(m, log)
		go func() {
			if err := as.ListenAndServe(*adminAddr); err != nil {
				log.WithError(err).Error("admin")
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	cancel()
	if as != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		as.Shutdown(sctx)
		scancel()
	}
	m.Stop()
}
