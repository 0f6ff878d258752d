package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/voiceinvoice/voice-invoice/internal/inference"
	"github.com/voiceinvoice/voice-invoice/internal/invoice"
	"github.com/voiceinvoice/voice-invoice/internal/render"
	"github.com/voiceinvoice/voice-invoice/internal/server"
	"github.com/voiceinvoice/voice-invoice/internal/storage"
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

	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	flags := ff.NewFlagSet("voice-invoice")
	var (
		port        = flags.IntLong("port", 8000, "HTTP server port")
		logLevel    = flags.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		_           = flags.StringLong("config", "", "Config file (plain 'flag value' lines)")
		storeType   = flags.StringLong("store", "s3", "Blob store: 's3', 'bolt' or 'local'")
		s3Endpoint  = flags.StringLong("minio-endpoint", "localhost:9000", "S3/MinIO endpoint (empty for AWS)")
		s3Access    = flags.StringLong("minio-access-key", "", "S3/MinIO access key")
		s3Secret    = flags.StringLong("minio-secret-key", "", "S3/MinIO secret key")
		s3Secure    = flags.BoolLong("minio-secure", "Use HTTPS for the S3/MinIO endpoint")
		s3Region    = flags.StringLong("minio-region", "us-east-1", "S3/MinIO region")
		boltPath    = flags.StringLong("bolt-path", "voice-invoice.db", "Database file for the bolt store")
		localPath   = flags.StringLong("local-path", "./blobs", "Directory for the local store")
		audioBucket = flags.StringLong("audio-bucket", server.DefaultBuckets.Audio, "Bucket for uploaded audio")
		pdfBucket   = flags.StringLong("pdf-bucket", server.DefaultBuckets.Invoices, "Bucket for generated invoices")
		modelType   = flags.StringLong("model", "gemini", "Inference backend: 'gemini' or 'ollama'")
		loadModel   = flags.BoolLong("load-model", "Load the inference backend at startup")
		geminiKey   = flags.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = flags.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL   = flags.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = flags.StringLong("ollama-model", "llama3.1", "Ollama model name (transcript-only)")
		tablesPath  = flags.StringLong("tables", "", "YAML file with clients and catalog (built-in demo data if empty)")
		authUser    = flags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = flags.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = flags.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(flags, os.Args[1:],
		ff.WithEnvVarPrefix("VOICE_INVOICE"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithConfigAllowMissingFile(),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(flags))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	slog.Info("Initializing storage...", "type", *storeType)
	var store storage.Store
	var err error
	switch *storeType {
	case "s3":
		store, err = storage.NewS3Store(ctx, storage.S3Config{
			Endpoint:  *s3Endpoint,
			Region:    *s3Region,
			AccessKey: *s3Access,
			SecretKey: *s3Secret,
			Secure:    *s3Secure,
		}, logger)
	case "bolt":
		store, err = storage.NewBoltStore(*boltPath)
	case "local":
		store, err = storage.NewLocalStore(*localPath)
	default:
		err = fmt.Errorf("invalid store type %q, valid: s3, bolt or local", *storeType)
	}
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	buckets := server.Buckets{Audio: *audioBucket, Invoices: *pdfBucket}
	if err := store.EnsureBuckets(ctx, buckets.Audio, buckets.Invoices); err != nil {
		slog.Error("Failed to prepare buckets", "error", err)
		os.Exit(1)
	}

	// Initialize the inference backend; it is constructed on Load
	var factory inference.Factory
	switch *modelType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		factory = func(ctx context.Context) (inference.Inferrer, error) {
			g, err := inference.NewGemini(ctx, apiKey, *geminiModel)
			if err != nil {
				return nil, err
			}
			return g, nil
		}
	case "ollama":
		factory = func(context.Context) (inference.Inferrer, error) {
			return inference.NewOllama(inference.OllamaConfig{
				BaseURL:  *ollamaURL,
				Model:    *ollamaModel,
				RetryMax: 2,
				Logger:   logger,
			}), nil
		}
	default:
		slog.Error("Invalid model type", "type", *modelType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	model := inference.NewHandle(*modelType, factory, logger)
	defer model.Close()

	if *loadModel {
		slog.Info("Loading model...", "backend", *modelType)
		if err := model.Load(ctx); err != nil {
			// The server still starts; the model can be loaded later via the API.
			slog.Error("Failed to load model", "error", err)
		}
	}

	// Lookup tables
	tables := invoice.DefaultTables()
	if *tablesPath != "" {
		tables, err = invoice.LoadTables(*tablesPath)
		if err != nil {
			slog.Error("Failed to load lookup tables", "path", *tablesPath, "error", err)
			os.Exit(1)
		}
	}
	lookup := invoice.NewSyncedLookup(tables)

	service := server.NewService(server.Options{
		Store:      store,
		Model:      model,
		Pipeline:   invoice.NewPipeline(invoice.NewReconciler(lookup, nil), logger),
		Renderer:   render.NewPDF(),
		Buckets:    buckets,
		Lookup:     lookup,
		TablesPath: *tablesPath,
		Logger:     logger,
	})

	basicAuth := server.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	srv := server.NewServer(service, basicAuth, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			stop()
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", httpServer.Addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	<-ctx.Done()

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}
