package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/bonus-tracker/internal/extraction"
	"github.com/zombor/bonus-tracker/internal/matching"
	"github.com/zombor/bonus-tracker/internal/receipt"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("bonus-tracker")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "bonus-tracker.db", "Database file path")
		storagePath   = fs.StringLong("storage", "./receipts", "Storage directory path")
		extractorKind = fs.StringLong("extractor", extraction.KindFitz, "PDF text extractor: 'fitz' or 'pdf'")
		threshold     = fs.Float64Long("threshold", matching.DefaultConfidenceThreshold, "Minimum confidence for automatic bonus matching (0-1)")
		storeName     = fs.StringLong("store", receipt.DefaultStore, "Store name recorded on imported receipts")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		parseFile     = fs.StringLong("parse-file", "", "Parse a single PDF, print the result as JSON and exit")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BONUS_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	matcher, err := matching.NewMatcher(*threshold)
	if err != nil {
		slog.Error("Invalid matching threshold", "error", err)
		os.Exit(1)
	}

	slog.Info("Initializing extractor...", "kind", *extractorKind)
	extractor, err := extraction.New(*extractorKind)
	if err != nil {
		slog.Error("Failed to initialize extractor", "error", err)
		os.Exit(1)
	}
	defer extractor.Close()

	if *parseFile != "" {
		if err := previewFile(*parseFile, extractor, matcher); err != nil {
			slog.Error("Failed to parse file", "file", *parseFile, "error", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	receiptService := receipt.NewService(db, store, extractor, matcher, receipt.WithStore(*storeName))

	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := receipt.NewServer(receiptService, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"version", version,
		"threshold", matcher.Threshold(),
	)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// previewFile parses one PDF without touching the database
func previewFile(path string, extractor extraction.Extractor, matcher *matching.Matcher) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	preview, err := receipt.NewService(nil, nil, extractor, matcher).PreviewFile(data)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(preview)
}
