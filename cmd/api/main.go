package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"drafthub/internal/blobstore"
	"drafthub/internal/config"
	"drafthub/internal/handlers"
	"drafthub/internal/http"
	"drafthub/internal/llm"
	"drafthub/internal/publish"
	"drafthub/internal/search"
	"drafthub/internal/session"
	"drafthub/internal/storage"
	"drafthub/internal/tokenizer"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API stores drafts, publishes them as notes and makes published notes searchable.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: Drafthub API
//   description: |
//     Draft autosave, save and publish for a knowledge base. Document bodies live in an
//     object store, metadata in SQL, and published notes are indexed for search.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx := context.Background()

	// Initialize database
	db, err := storage.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(ctx, db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "driver", cfg.DBDriver)

	draftRepo := storage.NewDraftRepo(db)
	noteRepo := storage.NewNoteRepo(db)
	groupRepo := storage.NewGroupRepo(db)

	// Object store
	blobs, err := blobstore.New(blobstore.Config{
		Endpoint:     cfg.MinioEndpoint,
		AccessKey:    cfg.MinioAccessKey,
		SecretKey:    cfg.MinioSecretKey,
		UseSSL:       cfg.MinioUseSSL,
		DraftsBucket: cfg.BlobDraftsBucket,
		NotesBucket:  cfg.BlobNotesBucket,
	})
	if err != nil {
		log.Fatalf("Failed to create object store client: %v", err)
	}
	if err := blobs.EnsureBuckets(ctx); err != nil {
		log.Fatalf("Failed to ensure buckets: %v", err)
	}
	slog.Info("Object store ready", "endpoint", cfg.MinioEndpoint, "drafts", cfg.BlobDraftsBucket, "notes", cfg.BlobNotesBucket)

	// Sessions
	sessions, err := session.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to session store: %v", err)
	}
	defer func() {
		_ = sessions.Close()
	}()

	codec, err := tokenizer.New(cfg.TokenEncoding)
	if err != nil {
		log.Fatalf("Failed to load tokenizer: %v", err)
	}
	slog.Info("Tokenizer loaded", "encoding", codec.Encoding(), "max_embed_tokens", cfg.MaxEmbedTokens)

	// Embeddings are optional: without them notes are published with an empty vector.
	var embedder *llm.EmbeddingsClient
	if cfg.EmbeddingBaseURL != "" {
		embedder = llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.QdrantVectorSize)
		checkCtx, cancel := context.WithTimeout(ctx, cfg.EmbeddingTimeout)
		if _, err := embedder.Embed(checkCtx, "test"); err != nil {
			slog.Warn("Embedding client check failed; publishing continues with empty embeddings until it recovers", "error", err)
		} else {
			slog.Info("Embedding client validated", "model", cfg.EmbeddingModelName, "vector_size", cfg.QdrantVectorSize)
		}
		cancel()
	}

	healthChecks := map[string]handlers.HealthCheck{
		"database":     db.PingContext,
		"object_store": blobs.Ping,
		"sessions":     sessions.Ping,
	}

	// Search backends
	var (
		backends []search.Indexer
		searcher search.Searcher
	)
	if cfg.MeiliURL != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliAPIKey)
		if err := meili.ConfigureIndex(ctx); err != nil {
			log.Fatalf("Failed to configure search index: %v", err)
		}
		backends = append(backends, meili)
		searcher = meili
		healthChecks["meili"] = meili.Ping
		slog.Info("Meilisearch index ready", "index", search.IndexNotes)
	}
	if cfg.QdrantURL != "" {
		vectors, err := search.NewQdrant(cfg.QdrantURL)
		if err != nil {
			log.Fatalf("Failed to create Qdrant client: %v", err)
		}
		defer func() {
			_ = vectors.Close()
		}()

		// Ensure collection exists with correct vector size
		if err := vectors.EnsureCollection(ctx, cfg.QdrantCollection, cfg.QdrantVectorSize); err != nil {
			log.Fatalf("Failed to ensure Qdrant collection: %v", err)
		}
		backends = append(backends, vectors.Indexer(cfg.QdrantCollection))
		healthChecks["qdrant"] = vectors.Ping
		if embedder != nil {
			searcher = search.NewSemantic(embedder, vectors, cfg.QdrantCollection)
		}
		slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.QdrantVectorSize)
	}

	deps := publish.Deps{
		Drafts:              draftRepo,
		Notes:               noteRepo,
		Groups:              groupRepo,
		Blobs:               blobs,
		Truncator:           codec,
		Indexer:             search.NewFanout(backends...),
		MaxEmbedTokens:      cfg.MaxEmbedTokens,
		EmbedTimeout:        cfg.EmbeddingTimeout,
		CompensationTimeout: cfg.CompensateTimeout,
	}
	if embedder != nil {
		deps.Embedder = embedder
	}
	publisher := publish.NewService(deps)

	routerDeps := &http.Deps{
		Drafts:         publisher,
		Notes:          noteRepo,
		Groups:         groupRepo,
		Bodies:         blobs,
		Searcher:       searcher,
		Sessions:       sessions,
		HealthChecks:   healthChecks,
		RequestTimeout: cfg.RequestTimeout,
	}
	if cfg.LLMBaseURL != "" {
		routerDeps.Completer = llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)
		slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	}

	server := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           http.NewRouter(routerDeps),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("Starting API server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatalf("API server failed to start: %v", err)
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	// Let in-flight publishes finish their commit and compensation.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+cfg.CompensateTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
	slog.Info("API server stopped")
}
