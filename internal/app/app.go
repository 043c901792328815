package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"corpora/features/chat"
	"corpora/features/document"
	"corpora/features/job"
	"corpora/features/stats"
	"corpora/internal/adapter/gemini"
	"corpora/internal/adapter/openai"
	"corpora/internal/config"
	"corpora/internal/ingest"
	"corpora/internal/metrics"
	"corpora/internal/middleware"
	"corpora/internal/model"
	"corpora/internal/retrieval"
	"corpora/internal/settings"
	"corpora/internal/text"
)

// ObjectStore is the blob store documents are uploaded to and fetched from.
type ObjectStore interface {
	PresignUpload(ctx context.Context, key string) (string, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// VectorIndex is the per-collection vector store used by both the ingestion
// pipeline and the retrieval engine.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, collectionID string) error
	Upsert(ctx context.Context, collectionID string, entries []ingest.IndexEntry) error
	Count(ctx context.Context, collectionID string) (int, error)
	Query(ctx context.Context, collectionID string, vector []float32, k int) ([]retrieval.Match, error)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type Extractor interface {
	Extract(filename string, data []byte) (string, error)
}

type App struct {
	Handler         http.Handler
	IngestConsumer  *ingest.Consumer
	DocumentService *document.Service
	port            int
}

func New(
	cfg *config.Config,
	db *sql.DB,
	store ObjectStore,
	index VectorIndex,
	taskPub TaskPublisher,
	extractor Extractor,
) (*App, error) {
	// Feature: Settings
	settingsRepo := settings.NewPostgresRepo(db)
	settingsService := settings.NewService(settingsRepo)
	seedSettings(cfg, settingsService)
	settingsHandler := settings.NewHandler(settingsService)

	// Providers
	geminiClient := gemini.NewClient(settingsService)
	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)

	router := model.NewRouter(map[string]model.Provider{
		model.ProviderGemini: geminiClient,
		model.ProviderOpenAI: openaiClient,
	}, settingsDefaults{svc: settingsService})

	// Feature: Document
	documentRepo := document.NewPostgresRepo(db)
	documentService := document.NewService(documentRepo, store, taskPub)
	documentHandler := document.NewHandler(documentService)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, taskPub, documentService, config.TopicIngestTask)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsHandler := stats.NewHandler(documentRepo, jobRepo)

	// Retrieval
	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}
	retrievalService := retrieval.NewService(geminiClient, index, &routedGenerator{router: router}, settingsService, queryLogger)
	retrievalHandler := retrieval.NewHandler(retrievalService)

	// Feature: Chat
	registry := chat.NewRegistry(cfg.SessionCapacity, time.Duration(cfg.SessionTTLMinutes)*time.Minute)
	chatService := chat.NewService(registry, retrievalService, router)
	chatHandler := chat.NewHandler(chatService)

	// Ingestion pipeline
	orchestrator := ingest.NewOrchestrator(
		store,
		extractor,
		text.Split,
		documentRepo,
		geminiClient,
		index,
		documentService,
		cfg.ChunkMaxTokens,
		cfg.ChunkOverlap,
	)
	mtr := metrics.New()

	ingestConsumer := ingest.NewConsumer(orchestrator, documentService, job.NewArchiver(jobRepo), ingest.ConsumerConfig{
		MaxAttempts:   cfg.MaxAttempts,
		RetryBase:     time.Duration(cfg.RetryBaseSeconds) * time.Second,
		SoftTimeLimit: time.Duration(cfg.SoftTimeLimitSeconds) * time.Second,
		HardTimeLimit: time.Duration(cfg.HardTimeLimitSeconds) * time.Second,
		Metrics:       mtr,
	})

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

	mux.Handle("POST /collections/{collectionId}/documents", middleware.CorrelationID(enableCORS(documentHandler.Register)))
	mux.Handle("GET /collections/{collectionId}/documents", middleware.CorrelationID(enableCORS(documentHandler.List)))
	mux.Handle("POST /collections/{collectionId}/documents/{id}/ingest", middleware.CorrelationID(enableCORS(documentHandler.TriggerIngest)))
	mux.Handle("GET /documents/{id}", middleware.CorrelationID(enableCORS(documentHandler.Get)))

	mux.Handle("POST /collections/{collectionId}/search", middleware.CorrelationID(enableCORS(retrievalHandler.Search)))

	mux.Handle("POST /chat/sessions", middleware.CorrelationID(enableCORS(chatHandler.CreateSession)))
	mux.Handle("GET /chat/sessions", middleware.CorrelationID(enableCORS(chatHandler.ListSessions)))
	mux.Handle("POST /chat", middleware.CorrelationID(enableCORS(chatHandler.Send)))
	mux.Handle("GET /chat/sessions/{id}/history", middleware.CorrelationID(enableCORS(chatHandler.History)))
	mux.Handle("DELETE /chat/sessions/{id}", middleware.CorrelationID(enableCORS(chatHandler.DeleteSession)))

	mux.Handle("GET /settings", middleware.CorrelationID(enableCORS(settingsHandler.GetSettings)))
	mux.Handle("PUT /settings", middleware.CorrelationID(enableCORS(settingsHandler.UpdateSettings)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(enableCORS(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(enableCORS(jobHandler.Retry)))

	mux.Handle("GET /stats", middleware.CorrelationID(enableCORS(statsHandler.GetStats)))

	mux.Handle("GET /metrics", mtr.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:         mtr.Instrument(mux),
		IngestConsumer:  ingestConsumer,
		DocumentService: documentService,
		port:            cfg.ServerPort,
	}, nil
}

// settingsDefaults feeds the stored default model to the router, so a
// PUT /settings change takes effect on the next request.
type settingsDefaults struct {
	svc *settings.Service
}

func (d settingsDefaults) DefaultModel(ctx context.Context) string {
	s, err := d.svc.Get(ctx)
	if err != nil {
		return ""
	}
	return s.DefaultModel
}

// routedGenerator adapts the model router to the retrieval engine's
// generator contract, so answer synthesis honors the routing rules.
type routedGenerator struct {
	router *model.Router
}

func (g *routedGenerator) Generate(ctx context.Context, prompt string, temperature float32, maxTokens int) (string, error) {
	return g.router.Generate(ctx, model.Request{
		ContextLength: len(strings.Fields(prompt)),
	}, prompt, temperature, maxTokens)
}

// seedSettings backfills the settings row from the environment: API keys
// when the row has none, and retrieval defaults when the row holds zero
// values. Non-empty stored values always win.
func seedSettings(cfg *config.Config, svc *settings.Service) {
	ctx := context.Background()
	set, err := svc.Get(ctx)
	if err != nil {
		slog.Warn("failed to fetch settings for seeding", "error", err)
		return
	}

	changed := false
	if set.GeminiAPIKey == "" && cfg.GeminiAPIKey != "" {
		set.GeminiAPIKey = cfg.GeminiAPIKey
		changed = true
	}
	if set.OpenAIAPIKey == "" && cfg.OpenAIAPIKey != "" {
		set.OpenAIAPIKey = cfg.OpenAIAPIKey
		changed = true
	}
	if set.SearchTopK == 0 && cfg.DefaultTopK > 0 {
		set.SearchTopK = cfg.DefaultTopK
		changed = true
	}
	if set.AnswerTemperature == 0 && cfg.AnswerTemperature > 0 {
		set.AnswerTemperature = cfg.AnswerTemperature
		changed = true
	}
	if set.AnswerMaxTokens == 0 && cfg.AnswerMaxTokens > 0 {
		set.AnswerMaxTokens = cfg.AnswerMaxTokens
		changed = true
	}
	if !changed {
		return
	}

	if err := svc.Update(ctx, set); err != nil {
		slog.Warn("failed to seed settings from environment", "error", err)
	} else {
		slog.Info("seeded settings from environment")
	}
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
