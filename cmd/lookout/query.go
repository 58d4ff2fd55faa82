package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fatih/color"

	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/dispatch"
	"github.com/mattjoyce/lookout/internal/log"
)

func runQuery(args []string) int {
	fs := newFlagSet("query")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	local := fs.Bool("local", false, "Search the catalog database instead of the API")
	follow := fs.Bool("follow", false, "Treat each stdin line as an edit of the search field")
	jsonOut := fs.Bool("json", false, "Print each result as a JSON line")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: lookout query [flags] [text]")
		fmt.Fprintln(stderr, "       lookout query --follow [flags] < edits")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}
	if *follow && fs.NArg() > 0 {
		fmt.Fprintln(stderr, "query --follow reads text from stdin and takes no arguments")
		return 1
	}

	cfg, err := loadConfig(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := openSource(ctx, cfg, *local)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open search source: %v\n", err)
		return 1
	}
	defer src.close()

	p := &resultPrinter{out: stdout, errOut: stderr, json: *jsonOut}

	if !*follow {
		text := strings.Join(fs.Args(), " ")
		if cfg.Search.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Search.RequestTimeout)
			defer cancel()
		}
		res, err := src.transport.Submit(ctx, text)
		if err != nil {
			p.OnError(text, err)
			return 1
		}
		p.OnResult(text, res)
		return 0
	}
	return followQueries(ctx, cfg.Search.Dispatch(), src.transport, p, stdin)
}

// followQueries feeds every line of in to a dispatcher as an edit, prints
// each accepted outcome and returns once the last edit has been answered.
func followQueries(ctx context.Context, cfg dispatch.Config, t dispatch.Transport[catalog.Result], p *resultPrinter, in io.Reader) int {
	d, err := dispatch.New[catalog.Result](cfg, t, p, dispatch.WithLogger(log.WithComponent("dispatch")))
	if err != nil {
		fmt.Fprintf(stderr, "Failed to start dispatcher: %v\n", err)
		return 1
	}
	go func() { _ = d.Run(ctx) }()
	defer func() {
		d.Close()
		<-d.Done()
	}()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		d.TextChanged(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(stderr, "Failed to read stdin: %v\n", err)
		return 1
	}

	if err := d.WaitIdle(ctx); err != nil {
		fmt.Fprintf(stderr, "Interrupted: %v\n", err)
		return 1
	}
	if p.failed.Load() {
		return 1
	}
	return 0
}

// resultPrinter renders outcomes for a terminal or, with json set, as JSON
// lines. It implements dispatch.Consumer.
type resultPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	errOut io.Writer
	json   bool
	failed atomic.Bool
}

var (
	sourceStyle = color.New(color.FgCyan, color.Bold).SprintFunc()
	tableStyle  = color.New(color.Bold).SprintFunc()
	faintStyle  = color.New(color.Faint).SprintFunc()
	errorStyle  = color.New(color.FgRed).SprintFunc()
)

func (p *resultPrinter) OnResult(text string, res catalog.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		if err := json.NewEncoder(p.out).Encode(res); err != nil {
			fmt.Fprintf(p.errOut, "encode result: %v\n", err)
		}
		return
	}

	fmt.Fprintf(p.out, "%s %d of %d entries\n", faintStyle(fmt.Sprintf("%q:", text)), len(res.Hits), res.Total)
	source := ""
	for _, hit := range res.Hits {
		if hit.Source != source {
			source = hit.Source
			fmt.Fprintln(p.out, sourceStyle(source))
		}
		name := tableStyle(hit.Table)
		if !hit.IsTable() {
			name = hit.Table + "." + hit.Column
		}
		line := "  " + name
		if len(hit.Keywords) > 0 {
			line += "  " + faintStyle("["+strings.Join(hit.Keywords, ", ")+"]")
		}
		fmt.Fprintln(p.out, line)
	}
}

func (p *resultPrinter) OnError(text string, err error) {
	p.failed.Store(true)
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.errOut, "%s %v\n", errorStyle(fmt.Sprintf("query %q failed:", text)), err)
}
