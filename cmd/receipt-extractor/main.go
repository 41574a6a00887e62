package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-extractor/internal/config"
	"github.com/zombor/receipt-extractor/internal/extraction"
	"github.com/zombor/receipt-extractor/internal/receipt"
	"github.com/zombor/receipt-extractor/internal/scanning"
)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(config.Version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-extractor")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "receipt-extractor.db", "Extraction journal file path")
		maxUploadMB   = fs.IntLong("max-upload-mb", receipt.DefaultMaxUpload>>20, "Maximum size of one uploaded file, in MB")
		maxConcurrent = fs.IntLong("max-concurrent", 4, "Maximum simultaneous extractions (0 = unbounded)")
		ratePerMinute = fs.IntLong("rate-limit-per-minute", 0, "Maximum extraction requests per minute (0 = unlimited)")
		_             = fs.BoolLong("version", "Show version information")
		extractFlags  = config.RegisterExtraction(fs)
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix(config.EnvVarPrefix),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *port, *dbPath, *maxUploadMB, *maxConcurrent, *ratePerMinute, extractFlags); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, port int, dbPath string, maxUploadMB, maxConcurrent, ratePerMinute int, flags *config.Extraction) error {
	slog.Info("Initializing database...", "path", dbPath)
	db, err := receipt.NewBoltDB(dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	backendCfg := flags.Backend()
	slog.Info("Initializing backend...", "backend", backendCfg.Provider)
	client, backend, err := scanning.NewClient(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("initializing backend: %w", err)
	}
	defer backend.Close()

	// A missing key is reported per request as 503 rather than refusing to start
	if err := backend.CheckCredentials(); err != nil {
		var cfgErr *extraction.ConfigurationError
		if !errors.As(err, &cfgErr) {
			return err
		}
		slog.Warn("Backend is not configured", "backend", backend.Name(), "reason", cfgErr.Reason)
	}
	slog.Info("Backend ready", "backend", backend.Name(), "models", client.Models())

	extractor := extraction.NewExtractor(flags.Pipeline(), client)
	service := receipt.NewService(db, extractor)
	server := receipt.NewServer(service, receipt.Options{
		MaxUploadBytes: int64(maxUploadMB) << 20,
		MaxConcurrent:  int64(maxConcurrent),
		RatePerMinute:  ratePerMinute,
	})

	addr := fmt.Sprintf(":%d", port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", config.Version)
	return server.Start(ctx, addr)
}
