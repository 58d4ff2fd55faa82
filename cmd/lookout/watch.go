package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/lookout/internal/events"
	"github.com/mattjoyce/lookout/internal/log"
	"github.com/mattjoyce/lookout/internal/transport"
	"github.com/mattjoyce/lookout/internal/tui/watch"
)

func runWatch(args []string) int {
	fs := newFlagSet("watch")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	cfg, err := loadConfig(*configPath, io.Discard)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	api, err := transport.NewHTTP(transport.HTTPConfig{
		Endpoint: cfg.Search.Endpoint,
		APIKey:   cfg.Search.APIKey,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Invalid search endpoint: %v\n", err)
		return 1
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	feed := make(chan events.Event, 100)
	go func() {
		defer close(feed)
		sub := transport.NewSubscriber(cfg.Search.Endpoint, cfg.Search.APIKey)
		err := sub.Run(ctx, func(ev events.Event) {
			select {
			case feed <- ev:
			case <-ctx.Done():
			}
		})
		if err != nil {
			log.WithComponent("watch").Warn("change feed stopped", "error", err)
		}
	}()

	if err := watch.Run(ctx, api, feed, cfg.Search.Endpoint); err != nil {
		fmt.Fprintf(stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
