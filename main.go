package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rtsp2ws/config"
	"rtsp2ws/httpServer"
	"rtsp2ws/internal/metrics"
	"rtsp2ws/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		log.Printf("rtsp2ws: %v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	log.Printf("rtsp2ws: loaded %d stream(s)", len(cfg.Streams))

	reg := supervisor.Build(cfg)
	m := metrics.New()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := supervisor.Run(ctx, cfg, reg, m); err != nil {
			log.Printf("rtsp2ws: supervisor exited: %v", err)
		}
	}()

	srv := httpServer.New(reg, m)
	addr := fmt.Sprintf(":%d", cfg.Port)

	log.Printf("rtsp2ws: HTTP server listening on %s", addr)
	if err := srv.Run(ctx, addr, cfg.CertFile, cfg.KeyFile); err != nil {
		return fmt.Errorf("HTTP server: %w", err)
	}

	log.Println("rtsp2ws: shutdown complete")
	return nil
}
