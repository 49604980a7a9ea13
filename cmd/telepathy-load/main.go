// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command telepathy-load fires messages at a telepathy echo server from
// many clients.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/someonegg/telepathy"
	"github.com/someonegg/telepathy/internal/logx"
	"github.com/someonegg/telepathy/loadgen"
	"gopkg.in/yaml.v3"
)

func loadConfig(path string) (loadgen.Config, error) {
	cfg := loadgen.DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	err = yaml.Unmarshal(data, &cfg)
	return cfg, err
}

func main() {
	configFile := flag.String("config", "", "YAML configuration file")
	addr := flag.String("addr", "", "Server address (overrides config)")
	clients := flag.Int("n", 0, "Number of clients (overrides config)")
	hz := flag.Float64("hz", 0, "Messages per second per client (overrides config)")
	duration := flag.Duration("d", 0, "Run duration, 0 runs until interrupted")
	interval := flag.Duration("report", 2*time.Second, "Report interval")
	debug := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	log := logx.New(*debug)
	if *interval <= 0 {
		*interval = 2 * time.Second
	}

	cfg := loadgen.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = loadConfig(*configFile); err != nil {
			log.WithError(err).Fatal("config")
		}
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *clients > 0 {
		cfg.Clients = *clients
	}
	if *hz > 0 {
		cfg.Rate = *hz
	}
	if *duration > 0 {
		cfg.Duration = telepathy.Duration{Duration: *duration}
	}

	g, err := loadgen.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("loadgen")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		cancel()
	}()

	go func() {
		t := time.NewTicker(*interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				log.Info(g.Report().String())
			}
		}
	}()

	if err := g.Run(ctx); err != nil {
		log.WithError(err).Fatal("run")
	}
	log.Info("done: ", g.Report().String())
}
