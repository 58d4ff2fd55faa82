package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/config"
)

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(stderr)
		return 1
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		return runConfigCheck(actionArgs)
	case "lock":
		return runConfigLock(actionArgs)
	case "help", "--help", "-h":
		printConfigNounHelp(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func printConfigNounHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: lookout config <action> [--config PATH]")
	fmt.Fprintln(w, "Actions: check, lock")
}

func runConfigCheck(args []string) int {
	fs := newFlagSet("check")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	path, err := config.Discover(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", color.RedString("✗"), err)
		return 1
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", color.RedString("✗"), err)
		return 1
	}
	sum, err := config.ComputeBlake3Hash(cfg.SourcePath)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", color.RedString("✗"), err)
		return 1
	}

	fmt.Fprintf(stdout, "%s %s\n", color.GreenString("✓"), cfg.SourcePath)
	fmt.Fprintf(stdout, "  blake3:  %s\n", sum)
	fmt.Fprintf(stdout, "  catalog: %s\n", cfg.Catalog.Path)
	fmt.Fprintf(stdout, "  listen:  %s\n", cfg.API.Listen)
	fmt.Fprintf(stdout, "  search:  %s (debounce %s)\n", cfg.Search.Endpoint, cfg.Search.DebounceInterval)
	if n := len(cfg.Webhooks.Endpoints); n > 0 {
		fmt.Fprintf(stdout, "  webhook: %d endpoint(s) on %s\n", n, cfg.Webhooks.Listen)
	}

	if len(cfg.Catalog.Seeds) > 0 {
		seeds, err := catalog.DiscoverSeeds(cfg.Catalog.Seeds)
		if err != nil {
			fmt.Fprintf(stderr, "%s catalog.seeds: %v\n", color.RedString("✗"), err)
			return 1
		}
		fmt.Fprintf(stdout, "  seeds:   %d file(s) match %d pattern(s)\n", len(seeds), len(cfg.Catalog.Seeds))
		if len(seeds) == 0 {
			fmt.Fprintf(stdout, "%s no seed files match catalog.seeds\n", color.YellowString("!"))
		}
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := newFlagSet("lock")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}

	path, err := config.Discover(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", color.RedString("✗"), err)
		return 1
	}
	resolved, sum, err := config.Lock(path)
	if err != nil {
		fmt.Fprintf(stderr, "%s %v\n", color.RedString("✗"), err)
		return 1
	}
	fmt.Fprintf(stdout, "%s pinned %s\n", color.GreenString("✓"), resolved)
	fmt.Fprintf(stdout, "  blake3: %s\n", sum)
	return 0
}
