package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/lock"
	"github.com/mattjoyce/lookout/internal/log"
	"github.com/mattjoyce/lookout/internal/profile"
	"github.com/mattjoyce/lookout/internal/storage"
)

func runIndex(args []string) int {
	fs := newFlagSet("index")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	profileDir := fs.String("profile", "", "Profile every delimited file in this folder into one source")
	profileDB := fs.String("profile-db", "", "Profile every table of this SQLite database into one source")
	separator := fs.String("separator", ",", `Field separator for --profile ("tab" for tabs)`)
	source := fs.String("source", "", "Source name for profiled tables (default: folder or database name)")
	workers := fs.Int("workers", profile.DefaultWorkers, "Files or tables profiled concurrently")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: lookout index [--config PATH] [seed files...]")
		fmt.Fprintln(stderr, "       lookout index --profile DIR [--separator ,] [--source NAME]")
		fmt.Fprintln(stderr, "       lookout index --profile-db FILE [--source NAME]")
		fmt.Fprintln(stderr, "Import the given seed files, every file matching catalog.seeds, or a profiled folder or database.")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return flagExit(err)
	}
	if *profileDir != "" && *profileDB != "" {
		fmt.Fprintln(stderr, "--profile and --profile-db are mutually exclusive")
		return 1
	}
	profiling := *profileDir != "" || *profileDB != ""
	if profiling && fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Seed files cannot be combined with --profile or --profile-db")
		return 1
	}
	sep, err := parseSeparator(*separator)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid --separator: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// serve holds the lock for as long as it runs; indexing underneath it
	// would race the watcher.
	pidLock, err := lock.AcquirePIDLock(cfg.Catalog.LockPath)
	if err != nil {
		fmt.Fprintf(stderr, "Cannot index while the catalog is in use: %v\n", err)
		fmt.Fprintln(stderr, "Hint: POST seeds to /catalog/entries on the running server instead")
		return 1
	}
	defer pidLock.Release()

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.Catalog.Path)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open catalog: %v\n", err)
		return 1
	}
	defer db.Close()
	store := catalog.NewStore(db)

	var (
		reports   []catalog.ImportReport
		importErr error
	)
	if profiling {
		p := profile.New(profile.NewQueue(db), store, profile.WithWorkers(*workers))
		var outcome profile.Outcome
		if *profileDir != "" {
			outcome, importErr = p.ProfileDir(ctx, *profileDir, *source, sep)
		} else {
			outcome, importErr = p.ProfileDatabase(ctx, *profileDB, *source)
		}
		printFailures(outcome.Failures)
		if importErr == nil {
			reports = []catalog.ImportReport{outcome.Report}
		}
	} else if fs.NArg() > 0 {
		paths := make([]string, 0, fs.NArg())
		for _, p := range fs.Args() {
			abs, err := filepath.Abs(p)
			if err != nil {
				fmt.Fprintf(stderr, "Invalid path %q: %v\n", p, err)
				return 1
			}
			paths = append(paths, abs)
		}
		reports, importErr = store.ImportFiles(ctx, paths)
	} else {
		if len(cfg.Catalog.Seeds) == 0 {
			fmt.Fprintln(stderr, "No seed files given and catalog.seeds is empty")
			return 1
		}
		reports, importErr = importSeeds(ctx, store, cfg.Catalog.Seeds, log.WithComponent("index"))
	}

	printReports(reports)
	if importErr != nil {
		fmt.Fprintf(stderr, "%s %v\n", color.RedString("Import failed:"), importErr)
		return 1
	}
	return 0
}

func printReports(reports []catalog.ImportReport) {
	if len(reports) == 0 {
		fmt.Fprintln(stdout, "No sources imported.")
		return
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tADDED\tUPDATED\tUNCHANGED\tREMOVED\tORIGIN")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n", r.Source, r.Added, r.Updated, r.Unchanged, r.Removed, r.Origin)
	}
	_ = tw.Flush()
}

func printFailures(failures []profile.Failure) {
	for _, f := range failures {
		target := f.Target
		if f.Object != "" {
			target += ":" + f.Object
		}
		fmt.Fprintf(stderr, "%s %s: %s\n", color.YellowString("skipped"), target, f.Error)
	}
}

func parseSeparator(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "tab", `\t`:
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 || r[0] == '"' || r[0] == '\r' || r[0] == '\n' {
		return 0, fmt.Errorf("%q must be a single character other than a quote or newline", s)
	}
	return r[0], nil
}
