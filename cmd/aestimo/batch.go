package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ternarybob/aestimo/internal/app"
	"github.com/ternarybob/aestimo/internal/models"
	"github.com/ternarybob/aestimo/internal/services/batch"
)

// runBatch executes an upload file against the analysis pipeline without
// starting the HTTP server and writes the result CSV to -out (or stdout).
func runBatch(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	mode := fs.String("mode", string(models.ModeMetricsOnly), "Analysis mode for every row (full, cached-only, metrics-only, deferred)")
	model := fs.String("model", "", "LLM model override for every row")
	out := fs.String("out", "", "Output CSV path (default: stdout)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: aestimo batch [flags] <upload.csv|upload.xlsx>\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}
	uploadPath := fs.Arg(0)

	parsedMode, err := models.ParseMode(*mode)
	if err != nil {
		logger.Fatal().Str("mode", *mode).Err(err).Msg("Invalid batch mode")
		os.Exit(1)
	}

	f, err := os.Open(uploadPath)
	if err != nil {
		logger.Fatal().Str("path", uploadPath).Err(err).Msg("Failed to open upload file")
		os.Exit(1)
	}
	rows, err := batch.ParseUpload(filepath.Base(uploadPath), f)
	f.Close()
	if err != nil {
		logger.Fatal().Str("path", uploadPath).Err(err).Msg("Failed to parse upload file")
		os.Exit(1)
	}

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error().Err(err).Msg("Error during application shutdown")
		}
	}()

	// Ctrl+C cancels the run; completed rows are still written out
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("upload", uploadPath).
		Int("rows", len(rows)).
		Str("mode", string(parsedMode)).
		Msg("Starting batch run")

	results, err := application.BatchExecutor.Run(ctx, rows, parsedMode, *model)
	if err != nil {
		logger.Fatal().Err(err).Msg("Batch run failed")
		os.Exit(1)
	}

	dest := os.Stdout
	if *out != "" {
		dest, err = os.Create(*out)
		if err != nil {
			logger.Fatal().Str("path", *out).Err(err).Msg("Failed to create output file")
			os.Exit(1)
		}
		defer dest.Close()
	}
	if err := batch.WriteCSV(dest, results); err != nil {
		logger.Fatal().Err(err).Msg("Failed to write batch results")
		os.Exit(1)
	}

	if *out != "" {
		logger.Info().Str("path", *out).Int("rows", len(results)).Msg("Batch results written")
	}
}
