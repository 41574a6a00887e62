package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gabriel-vasile/mimetype"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-extractor/internal/config"
	"github.com/zombor/receipt-extractor/internal/extraction"
	"github.com/zombor/receipt-extractor/internal/scanning"
)

func main() {
	fs := ff.NewFlagSet("extract-receipt")
	var (
		verbose     = fs.BoolLong("verbose", "Log pipeline progress to stderr")
		showVersion = fs.BoolLong("version", "Show version information")
		flags       = config.RegisterExtraction(fs)
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix(config.EnvVarPrefix),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(config.Version)
		os.Exit(0)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	files := fs.GetArgs()
	if len(files) == 0 {
		fmt.Fprintf(os.Stderr, "usage: extract-receipt [flags] file...\n\n%s\n", ffhelp.Flags(fs))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	data, err := run(ctx, flags, files)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error (%s): %v\n", extraction.Classify(err), err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, flags *config.Extraction, files []string) (*extraction.ReceiptData, error) {
	parts, err := readParts(files)
	if err != nil {
		return nil, err
	}

	client, backend, err := scanning.NewClient(ctx, flags.Backend())
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	return extraction.NewExtractor(flags.Pipeline(), client).Extract(ctx, parts)
}

// readParts reads the files in the order given, top of the receipt first
func readParts(files []string) ([]extraction.InputPart, error) {
	parts := make([]extraction.InputPart, 0, len(files))
	for _, name := range files {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		parts = append(parts, extraction.InputPart{Data: data, MimeType: mimeTypeOf(name, data)})
	}
	return parts, nil
}

func mimeTypeOf(name string, data []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return mimetype.Detect(data).String()
}
