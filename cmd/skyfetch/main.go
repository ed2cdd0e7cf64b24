// skyfetch fetches historical flight movements from the OpenSky Network API
// into a local SQLite database and exports filtered subsets to CSV or
// Parquet.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yegors/skyfetch/internal/api"
	"github.com/yegors/skyfetch/internal/config"
	"github.com/yegors/skyfetch/internal/export"
	"github.com/yegors/skyfetch/internal/fetch"
	"github.com/yegors/skyfetch/internal/opensky"
	"github.com/yegors/skyfetch/internal/storage/sqlite"
	"github.com/yegors/skyfetch/pkg/logger"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitUsage
	}

	switch args[0] {
	case "flights":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: skyfetch flights {departure|destination} [flags]")
			return exitUsage
		}
		var kind opensky.Kind
		switch args[1] {
		case "departure":
			kind = opensky.KindDeparture
		case "destination":
			kind = opensky.KindArrival
		default:
			fmt.Fprintf(os.Stderr, "unknown flights subcommand %q (use departure or destination)\n", args[1])
			return exitUsage
		}
		return runFlights(kind, args[2:])
	case "export":
		return runExport(args[1:])
	case "help", "-h", "--help":
		usage()
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		return exitUsage
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `skyfetch - OpenSky Network flight data fetcher and exporter

Usage:
  skyfetch flights departure   -airports KMCO,KJFK -start-date 2024-01-01 -end-date 2024-01-31 [flags]
  skyfetch flights destination -airports KLAX      -start-date 2024-01-01 -end-date 2024-01-31 [flags]
  skyfetch export <output-file> [-format csv|parquet] [-from KMCO] [-to KLAX] [flags]

Run a subcommand with -h for its flags. Credentials come from
-client-id/-client-secret, the OPENSKY_CLIENT_ID/OPENSKY_CLIENT_SECRET
environment variables, or a skyfetch.toml config file.
`)
}

func runFlights(kind opensky.Kind, args []string) int {
	fs := flag.NewFlagSet("flights", flag.ContinueOnError)
	airports := fs.String("airports", "", "comma-separated ICAO airport codes (e.g. KMCO,KJFK)")
	startDate := fs.String("start-date", "", "start date/datetime (YYYY-MM-DD or 'YYYY-MM-DD HH:MM:SS')")
	endDate := fs.String("end-date", "", "end date/datetime (YYYY-MM-DD or 'YYYY-MM-DD HH:MM:SS')")
	dbPath := fs.String("db-path", "", "path to SQLite database file (default flights.db)")
	configPath := fs.String("config", "", "path to TOML config file (default skyfetch.toml if present)")
	clientID := fs.String("client-id", "", "OAuth client ID (or OPENSKY_CLIENT_ID)")
	clientSecret := fs.String("client-secret", "", "OAuth client secret (or OPENSKY_CLIENT_SECRET)")
	maxConcurrent := fs.Int("max-concurrent", 0, "maximum concurrent requests (default 5)")
	rateLimit := fs.Duration("rate-limit", 0, "minimum delay between requests (default 500ms)")
	maxAttempts := fs.Int("max-attempts", 0, "maximum attempts per unit (default 5)")
	noSkip := fs.Bool("no-skip-existing", false, "re-fetch data even if it already exists in the database")
	statusAddr := fs.String("status-addr", "", "serve live progress on this address (e.g. :8080)")
	verbose := fs.Bool("v", false, "info-level logging")
	debug := fs.Bool("vv", false, "debug-level logging")
	quiet := fs.Bool("q", false, "suppress all output except the progress bar on a terminal")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	log, err := buildLogger(*verbose, *debug, *quiet)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitUsage
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitUsage
	}
	if *clientID != "" {
		cfg.API.ClientID = *clientID
	}
	if *clientSecret != "" {
		cfg.API.ClientSecret = *clientSecret
	}
	if *dbPath != "" {
		cfg.Storage.DBPath = *dbPath
	}
	if *maxConcurrent > 0 {
		cfg.Fetch.MaxConcurrent = *maxConcurrent
	}
	if *rateLimit > 0 {
		cfg.Fetch.RateLimit = rateLimit.String()
	}
	if *maxAttempts > 0 {
		cfg.Fetch.MaxAttempts = *maxAttempts
	}
	if *statusAddr != "" {
		cfg.Server.StatusAddr = *statusAddr
	}

	if cfg.API.ClientID == "" || cfg.API.ClientSecret == "" {
		fmt.Fprintln(os.Stderr, "OAuth credentials required: set OPENSKY_CLIENT_ID and OPENSKY_CLIENT_SECRET or use -client-id and -client-secret")
		return exitUsage
	}

	valid, _ := fetch.ValidateAirports(*airports, log)
	if *startDate == "" || *endDate == "" {
		fmt.Fprintln(os.Stderr, "-start-date and -end-date are required")
		return exitUsage
	}
	start, err := fetch.ParseBound(*startDate)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitUsage
	}
	end, err := fetch.ParseBound(*endDate)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitUsage
	}

	units, err := fetch.Plan(valid, kind, start, end)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitUsage
	}

	rateInterval, err := cfg.Fetch.RateLimitInterval()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitUsage
	}
	backoff, err := cfg.Fetch.BackoffInterval()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitUsage
	}

	db, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFailed
	}
	defer db.Close()

	store, err := sqlite.NewFlightStorage(db, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFailed
	}

	tokens := opensky.NewTokenProvider(cfg.API.AuthURL, cfg.API.ClientID, cfg.API.ClientSecret, cfg.API.Timeout(), log)
	client := opensky.NewClient(cfg.API.BaseURL, cfg.API.Timeout(), log)
	pacer := fetch.NewPacer(rateInterval, log)

	orch := fetch.NewOrchestrator(store, client, tokens, pacer, fetch.Options{
		MaxConcurrent:  cfg.Fetch.MaxConcurrent,
		MaxAttempts:    cfg.Fetch.MaxAttempts,
		InitialBackoff: backoff,
		SkipExisting:   !*noSkip,
	}, log)

	printer := newProgressPrinter(*quiet)
	agg := fetch.NewAggregator(len(units), printer.Update, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.StatusAddr != "" {
		router := api.NewRouter(agg, log)
		api.Serve(ctx, cfg.Server.StatusAddr, router.Routes(), log)
	}

	runErr := orch.Run(ctx, units, agg)
	printer.Finish()
	if runErr != nil {
		log.Error("Run aborted", logger.Error(runErr))
	}

	summary := agg.Summary()
	printSummary(summary, *quiet)
	if summary.AnyFailed() {
		return exitFailed
	}
	return exitOK
}

func runExport(args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	dbPath := fs.String("db-path", "", "path to SQLite database file (default flights.db)")
	configPath := fs.String("config", "", "path to TOML config file (default skyfetch.toml if present)")
	format := fs.String("format", "csv", "output format: csv or parquet")
	fromAirports := fs.String("from", "", "filter by departure airport codes (comma-separated)")
	toAirports := fs.String("to", "", "filter by arrival airport codes (comma-separated)")
	startDate := fs.String("start-date", "", "filter by start date (YYYY-MM-DD)")
	endDate := fs.String("end-date", "", "filter by end date (YYYY-MM-DD)")
	verbose := fs.Bool("v", false, "info-level logging")
	debug := fs.Bool("vv", false, "debug-level logging")
	quiet := fs.Bool("q", false, "suppress all output")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	outputPath := fs.Arg(0)
	if outputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: skyfetch export <output-file> [flags]")
		return exitUsage
	}

	log, err := buildLogger(*verbose, *debug, *quiet)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitUsage
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitUsage
	}
	if *dbPath != "" {
		cfg.Storage.DBPath = *dbPath
	}

	outFormat, err := export.ParseFormat(*format)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitUsage
	}

	var filter sqlite.QueryFilter
	if *fromAirports != "" {
		list, _ := fetch.ValidateAirports(*fromAirports, log)
		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "Error: no valid departure airport codes provided")
			return exitUsage
		}
		filter.DepartureAirports = list
	}
	if *toAirports != "" {
		list, _ := fetch.ValidateAirports(*toAirports, log)
		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "Error: no valid arrival airport codes provided")
			return exitUsage
		}
		filter.ArrivalAirports = list
	}
	if *startDate != "" {
		b, err := fetch.ParseBound(*startDate)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return exitUsage
		}
		day := b.Day()
		filter.StartDate = &day
	}
	if *endDate != "" {
		b, err := fetch.ParseBound(*endDate)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			return exitUsage
		}
		day := b.Day()
		filter.EndDate = &day
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		fmt.Fprintln(os.Stderr, "Error:", fetch.ErrInvalidRange)
		return exitUsage
	}

	if _, err := os.Stat(cfg.Storage.DBPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: database file %q does not exist\n", cfg.Storage.DBPath)
		return exitFailed
	}

	db, err := sqlite.Open(cfg.Storage.DBPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFailed
	}
	defer db.Close()

	store, err := sqlite.NewFlightStorage(db, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFailed
	}

	exporter := export.NewExporter(store, log)
	rows, err := exporter.Export(context.Background(), outputPath, outFormat, filter)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitFailed
	}

	if !*quiet {
		fmt.Printf("Exported %d rows to %s\n", rows, outputPath)
	}
	return exitOK
}

func buildLogger(verbose, debug, quiet bool) (*logger.Logger, error) {
	if quiet {
		return logger.Nop(), nil
	}
	level := "warn"
	if verbose {
		level = "info"
	}
	if debug {
		level = "debug"
	}
	return logger.New(logger.Config{Level: level, Format: "console"})
}

func printSummary(summary fetch.RunSummary, quiet bool) {
	if quiet {
		return
	}
	fmt.Fprintf(os.Stderr, "Planned: %d | Skipped: %d | Fetched: %d | Empty: %d | Failed: %d\n",
		summary.Planned, summary.Skipped, summary.Fetched, summary.Empty, summary.Failed)
	for _, failure := range summary.Failures {
		fmt.Fprintf(os.Stderr, "  failed: %s %s %s (%s after %d attempts): %s\n",
			failure.Airport, failure.Day, failure.Kind, failure.ErrKind, failure.Attempts, failure.Reason)
	}
}
