package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/dispatch"
	"github.com/mattjoyce/lookout/internal/events"
	"github.com/mattjoyce/lookout/internal/log"
	"github.com/mattjoyce/lookout/internal/tui/search"
)

func runSearch(args []string) int {
	fs := newFlagSet("search")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	local := fs.Bool("local", false, "Search the catalog database instead of the API")
	logFile := fs.String("log-file", "", "Append logs to this file (default: discard)")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	// The TUI owns the terminal, so logs never go to stdout or stderr.
	var logOut io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to open log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}

	cfg, err := loadConfig(*configPath, logOut)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logger := log.WithComponent("search")

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	src, err := openSource(ctx, cfg, *local)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open search source: %v\n", err)
		return 1
	}
	defer src.close()

	bridge := search.NewBridge()
	d, err := dispatch.New[catalog.Result](cfg.Search.Dispatch(), src.transport, bridge,
		dispatch.WithLogger(log.WithComponent("dispatch")))
	if err != nil {
		fmt.Fprintf(stderr, "Failed to start dispatcher: %v\n", err)
		return 1
	}
	go func() { _ = d.Run(ctx) }()
	defer func() {
		d.Close()
		<-d.Done()
		bridge.Close()
	}()

	var changes <-chan events.Event
	if src.subscriber != nil {
		ch := make(chan events.Event, 16)
		go func() {
			err := src.subscriber.Run(ctx, func(ev events.Event) {
				select {
				case ch <- ev:
				case <-ctx.Done():
				}
			})
			if err != nil {
				logger.Warn("catalog change feed stopped", "error", err)
			}
		}()
		changes = ch
	}

	logger.Info("search started", "target", src.target, "local", *local)
	err = search.Run(ctx, search.Options{
		Dispatcher: d,
		Outcomes:   bridge.Outcomes(),
		Changes:    changes,
		Target:     src.target,
	})
	if err != nil {
		fmt.Fprintf(stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}
