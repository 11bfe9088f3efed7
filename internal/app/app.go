package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"notia/features/ask"
	"notia/features/conversation"
	"notia/features/search"
	"notia/features/stats"
	featsync "notia/features/sync"
	"notia/internal/adapter/gemini"
	"notia/internal/adapter/notion"
	"notia/internal/adapter/openai"
	"notia/internal/config"
	"notia/internal/embedding"
	"notia/internal/ingest"
	"notia/internal/middleware"
	"notia/internal/ranking"
	"notia/internal/text"
	"notia/internal/vector"
	"notia/internal/worker"
)

type Database interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// VectorStore is the persistence dependency the app wires into the index.
type VectorStore interface {
	vector.Store
	EnsureSchema(ctx context.Context) error
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type App struct {
	Handler      http.Handler
	SyncConsumer *worker.SyncConsumer
	port         int
}

func New(
	ctx context.Context,
	cfg *config.Config,
	db Database,
	vecStore VectorStore,
	taskPub TaskPublisher,
) (*App, error) {

	// Core pipeline
	detector := text.NewLanguageDetector()
	chunker := text.NewChunker(cfg.ChunkMaxTokens, detector)

	embedder, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder error: %w", err)
	}
	generator := embedding.NewGenerator(embedder, cfg.EmbedBatchSize)

	index := vector.NewIndex(vecStore)
	ingestService := ingest.NewService(chunker, generator, index, cfg.IngestWorkers)

	queryLogger, err := ranking.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = ranking.NewQueryLogger(os.Stdout)
	}
	ranker := ranking.NewRanker(generator, index, queryLogger)

	// Adapters: content source & answer model
	notionClient := notion.NewClient(cfg.NotionAPIKey)
	answerEngine := openai.NewEngine(cfg.OpenAIAPIKey, detector)

	// Feature: Conversation
	// Cast db to *sql.DB for the repository. The interface in the signature
	// keeps the constructor mockable with sqlmock.
	sqlDB := db.(*sql.DB)
	conversationRepo := conversation.NewPostgresRepo(sqlDB)
	conversationService := conversation.NewService(conversationRepo)
	conversationHandler := conversation.NewHandler(conversationService)

	// Feature: Search & Ask
	searchHandler := search.NewHandler(ranker)
	askHandler := ask.NewHandler(ranker, answerEngine, conversationService)

	// Feature: Sync & Stats
	syncHandler := featsync.NewHandler(taskPub, index, notionClient)
	statsHandler := stats.NewHandler(index, generator, conversationRepo)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("GET /search", middleware.CorrelationID(enableCORS(askHandler.AskQuery)))
	mux.Handle("GET /search/pages", middleware.CorrelationID(enableCORS(searchHandler.Search)))
	mux.Handle("POST /search/pages", middleware.CorrelationID(enableCORS(searchHandler.Search)))

	mux.Handle("POST /ask", middleware.CorrelationID(enableCORS(askHandler.Ask)))

	mux.Handle("POST /index/rebuild", middleware.CorrelationID(enableCORS(syncHandler.Rebuild)))
	mux.Handle("POST /index/sync", middleware.CorrelationID(enableCORS(syncHandler.Sync)))
	mux.Handle("GET /index/status", middleware.CorrelationID(enableCORS(syncHandler.Status)))

	mux.Handle("GET /conversations", middleware.CorrelationID(enableCORS(conversationHandler.List)))
	mux.Handle("GET /conversations/{id}/messages", middleware.CorrelationID(enableCORS(conversationHandler.GetMessages)))
	mux.Handle("DELETE /conversations/{id}", middleware.CorrelationID(enableCORS(conversationHandler.Delete)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	syncConsumer := worker.NewSyncConsumer(notionClient, ingestService)

	return &App{
		Handler:      mux,
		SyncConsumer: syncConsumer,
		port:         cfg.ServerPort,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.port),
		Handler: a.Handler,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
