// Command moviments-classify classifies a bank statement export against the
// configured record store and prints the batch as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"moviments/internal/backend"
	"moviments/internal/batch"
	"moviments/internal/cli"
	"moviments/internal/config"
	"moviments/internal/core"
	applog "moviments/internal/log"
	"moviments/internal/store"
)

func main() {
	var (
		rules   = flag.String("rules", "", "keyword rules file (overrides RULES_FILE)")
		name    = flag.String("name", "", "source filename recorded on entries (default: base name of the input)")
		compact = flag.Bool("compact", false, "print compact JSON")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] statement.csv\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	path := flag.Arg(0)

	cli.LoadEnvFile()
	lc := applog.DefaultConfig()
	lc.Level = applog.ParseLevel(os.Getenv("LOG_LEVEL"))
	lc.Output = os.Stderr
	lc.Component = applog.ComponentBatch
	logger := applog.New(lc)
	applog.SetDefault(logger)

	cfg := cli.LoadAndValidateConfig(logger)
	if *rules != "" {
		cfg.RulesFile = *rules
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	filename := *name
	if filename == "" {
		filename = filepath.Base(path)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		cli.Fatal(logger, "Failed to read statement", err, applog.FieldFilename, path)
	}

	stats, err := classify(ctx, cfg, contents, filename, os.Stdout, !*compact)
	if err != nil {
		cli.Fatal(logger, "Failed to classify statement", err, applog.FieldFilename, filename)
	}
	applog.NewStructuredLogger(logger).LogBatchProcessed(ctx, filename, stats.Total, stats.Emitted, stats.AlreadyLoaded, stats.Unrecognized)
}

// classify runs one statement through the configured store and rules and
// writes the batch result to out.
func classify(ctx context.Context, cfg *config.Config, contents []byte, filename string, out io.Writer, indent bool) (core.Stats, error) {
	st, err := backend.NewFactory(slog.Default()).CreateStore(ctx, cfg)
	if err != nil {
		return core.Stats{}, fmt.Errorf("initialize record store: %w", err)
	}
	classifier, err := backend.LoadClassifier(cfg)
	if err != nil {
		return core.Stats{}, fmt.Errorf("load rules: %w", err)
	}
	refs, err := store.FetchBundle(ctx, st)
	if err != nil {
		return core.Stats{}, fmt.Errorf("fetch reference lists: %w", err)
	}

	result, err := batch.NewProcessor(classifier).Process(ctx, contents, filename, refs)
	if err != nil {
		return core.Stats{}, err
	}
	enc := json.NewEncoder(out)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(result); err != nil {
		return core.Stats{}, fmt.Errorf("write result: %w", err)
	}
	return result.Stats, nil
}
