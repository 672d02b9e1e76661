package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gwi.com/campus-knowledge/internal/api"
	"gwi.com/campus-knowledge/internal/config"
	"gwi.com/campus-knowledge/internal/core"
	"gwi.com/campus-knowledge/internal/docparse"
	"gwi.com/campus-knowledge/internal/fetch"
	"gwi.com/campus-knowledge/internal/ingest"
	"gwi.com/campus-knowledge/internal/objectstore"
	"gwi.com/campus-knowledge/internal/store"
	"gwi.com/campus-knowledge/internal/webextract"
)

func main() {
	config.LoadConfig()
	cfg := &config.AppConfig
	setupLogging(cfg.LogLevel)

	ctx := context.Background()

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbStore.Close()

	model, err := core.NewLanguageModel(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize language model", "provider", cfg.LLMProvider, "error", err)
		os.Exit(1)
	}
	defer model.Close()

	objects, filesDir, err := newObjectStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize object store", "backend", cfg.ObjectStore, "error", err)
		os.Exit(1)
	}
	if closer, ok := objects.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	fetcher := fetch.NewClient(cfg.FetchTimeout, cfg.FetchUserAgent, cfg.FetchMaxTries, cfg.MaxDownloadBytes)
	extractor := webextract.NewExtractor(fetcher, webextract.Options{
		MinContentChars: cfg.MinContentChars,
		WrapColumn:      cfg.WrapColumn,
	})
	parser := docparse.NewParser(docparse.NewTikaEngine(cfg.TikaURL, 2*cfg.FetchTimeout), fetcher, cfg.TempDir)
	normalizer := ingest.NewNormalizer(extractor, parser)

	chatService := core.NewChatService(dbStore, core.NewContextService(dbStore, cfg.ContextCharBudget), model, model, core.NewClassifier(model))
	documentService := core.NewDocumentService(dbStore, normalizer, objects, core.DocumentServiceConfig{
		TempDir:           cfg.TempDir,
		ImportConcurrency: cfg.ImportConcurrency,
		ImportRatePerSec:  cfg.ImportRatePerSec,
	})

	apiHandler := api.NewAPIHandler(chatService, documentService, api.HandlerConfig{
		IngestRoles:     cfg.IngestRoles,
		StreamKeepAlive: cfg.StreamKeepAlive,
		MaxUploadBytes:  cfg.MaxDownloadBytes,
	})
	router := api.NewRouter(apiHandler, api.RouterOptions{FilesDir: filesDir})

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// answer streams stay open for the whole generation
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "addr", serverAddr, "provider", cfg.LLMProvider, "object_store", cfg.ObjectStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Could not listen", "addr", serverAddr, "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	chatService.Wait()
	slog.Info("Server exiting gracefully")
}

func setupLogging(level string) {
	var handler slog.Handler
	if strings.EqualFold(level, "DEBUG") {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			lvl = slog.LevelInfo
		}
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
}

// newObjectStore returns the configured store and, for the local backend, the
// directory to serve under /files.
func newObjectStore(ctx context.Context, cfg *config.Config) (objectstore.Store, string, error) {
	switch cfg.ObjectStore {
	case "gcs":
		s, err := objectstore.NewGCSStore(ctx, cfg.GCSBucket)
		return s, "", err
	default:
		s, err := objectstore.NewLocalStore(cfg.ObjectStoreDir, cfg.ObjectStoreBaseURL)
		if err != nil {
			return nil, "", err
		}
		return s, s.Dir(), nil
	}
}
