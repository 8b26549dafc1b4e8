package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-ingest/internal/extraction"
	"github.com/zombor/receipt-ingest/internal/imaging"
	"github.com/zombor/receipt-ingest/internal/ingest"
	"github.com/zombor/receipt-ingest/internal/objectstore"
	"github.com/zombor/receipt-ingest/internal/server"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	fs := ff.NewFlagSet("receipt-ingest")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		dbPath       = fs.StringLong("db", "receipt-ingest.db", "Database file path")
		storeType    = fs.StringLong("store", "local", "Object storage backend: 'local' or 'gcs'")
		storagePath  = fs.StringLong("storage", "./objects", "Local storage directory path")
		gcsBucket    = fs.StringLong("gcs-bucket", "", "GCS bucket name (required for --store=gcs)")
		extractorTyp = fs.StringLong("extractor", "gemini", "Extraction backend: 'gemini' or 'ollama'")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set RECEIPT_INGEST_GEMINI_KEY)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL    = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel  = fs.StringLong("ollama-model", "llava", "Ollama vision model name")
		maxDimension = fs.IntLong("max-dimension", imaging.DefaultMaxDimension, "Longer-edge bound of optimized full images")
		thumbSize    = fs.IntLong("thumbnail-size", imaging.DefaultThumbnailSize, "Side length of square thumbnails")
		quality      = fs.Float64Long("quality", imaging.DefaultQuality, "JPEG quality of full images (0-1)")
		thumbQuality = fs.Float64Long("thumbnail-quality", imaging.DefaultThumbnailQuality, "JPEG quality of thumbnails (0-1)")
		authUser     = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass     = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_INGEST"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	ctx := context.Background()

	slog.Info("Initializing database...")
	db, err := ingest.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var store objectstore.Store
	switch *storeType {
	case "local":
		slog.Info("Initializing local object storage...", "path", *storagePath)
		store, err = objectstore.NewLocalStore(*storagePath)
		if err != nil {
			slog.Error("Failed to initialize storage", "error", err)
			os.Exit(1)
		}
	case "gcs":
		if *gcsBucket == "" {
			slog.Error("GCS bucket is required. Set --gcs-bucket flag or RECEIPT_INGEST_GCS_BUCKET environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing GCS object storage...", "bucket", *gcsBucket)
		gcs, err := objectstore.NewGCSStore(ctx, *gcsBucket)
		if err != nil {
			slog.Error("Failed to initialize GCS storage", "error", err)
			os.Exit(1)
		}
		defer gcs.Close()
		store = gcs
	default:
		slog.Error("Invalid store type", "type", *storeType, "valid", "local or gcs")
		os.Exit(1)
	}

	var extractor extraction.Coordinator
	switch *extractorTyp {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		extractor, err = extraction.NewGemini(apiKey, *geminiModel, store)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", *ollamaURL, "model", *ollamaModel)
		extractor, err = extraction.NewOllama(*ollamaURL, *ollamaModel, store)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid extractor type", "type", *extractorTyp, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer extractor.Close()

	opts := imaging.Options{
		MaxDimension:     *maxDimension,
		ThumbnailSize:    *thumbSize,
		Quality:          *quality,
		ThumbnailQuality: *thumbQuality,
	}

	orch := ingest.NewOrchestrator(store, db, extractor)
	svc := ingest.NewService(db, store)

	basicAuth := server.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	srv := server.NewServer(orch, svc, opts, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := srv.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
