// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// monitor prints the frames a streamer publishes over MQTT. It reads the
// broker and topic from the same config file as the streamer.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/relabs-tech/orientation_streamer/internal/app"
	"github.com/relabs-tech/orientation_streamer/internal/config"
)

func main() {
	configPath := flag.String("config", "streamer_config.txt", "path to the KEY=VALUE config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	l, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	logger := l.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunMonitor(ctx, cfg, logger, os.Stdout); err != nil {
		logger.Fatalw("fatal", "error", err)
	}
	_ = logger.Sync()
}
