package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mvaldes/sentira/pkg/engine/extract"
	"github.com/mvaldes/sentira/pkg/engine/insight"
	"github.com/mvaldes/sentira/pkg/engine/journal"
	"github.com/mvaldes/sentira/pkg/engine/pairing"
	"github.com/mvaldes/sentira/pkg/model"
	"github.com/mvaldes/sentira/pkg/oracle"
	"github.com/mvaldes/sentira/pkg/store/facts"
	"github.com/mvaldes/sentira/pkg/store/sqlite"
	"github.com/mvaldes/sentira/pkg/store/vector"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg := loadConfig()

	ctx := context.Background()
	db, err := sqlite.New(ctx, sqlite.Config{
		Path:      cfg.DBPath,
		VectorDim: cfg.VectorDim,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	client, err := oracle.NewClient(oracle.Options{
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		EmbedModel:     cfg.EmbedModel,
		EmbedDim:       cfg.VectorDim,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("failed to init oracle: %v", err)
	}

	taxonomy, err := loadTaxonomy(cfg.TaxonomyPath)
	if err != nil {
		log.Fatalf("failed to load taxonomy: %v", err)
	}

	aggregates := facts.New(db.DB(), logger)
	index := vector.New(db.DB(), cfg.VectorDim)
	pairer := pairing.New(client, index, logger)
	extractor := extract.New(extract.Options{
		Oracle:   client,
		Taxonomy: taxonomy,
		Logger:   logger,
	})
	processor := journal.New(journal.Options{
		Extractor:       extractor,
		Aggregates:      aggregates,
		Pairs:           pairer,
		Entries:         db,
		Oracle:          client,
		Fetcher:         oracle.NewFetcher(cfg.RequestTimeout, 0),
		Transcriber:     client,
		Language:        cfg.Language,
		DetachedTimeout: cfg.DetachedTimeout,
		Logger:          logger,
	})
	retriever := insight.New(client, index, client, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Post("/journal", func(w http.ResponseWriter, req *http.Request) {
		var in model.JournalInput
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if in.Type == "" {
			in.Type = model.InputText
		}
		touched, err := processor.ProcessInput(req.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, touched)
	})

	r.Post("/journal/quick", func(w http.ResponseWriter, req *http.Request) {
		var in model.JournalInput
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if in.Type == "" {
			in.Type = model.InputText
		}
		quick, err := processor.QuickAnalysis(req.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, quick)
	})

	r.Get("/journal/runs", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, processor.Runs())
	})

	r.Get("/insights/emotion", func(w http.ResponseWriter, req *http.Request) {
		userID := req.URL.Query().Get("user_id")
		emotion := req.URL.Query().Get("emotion")
		if userID == "" || emotion == "" {
			http.Error(w, "user_id and emotion are required", http.StatusBadRequest)
			return
		}
		res, err := retriever.InsightsForEmotion(req.Context(), userID, emotion)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, res)
	})

	r.Get("/insights/fact", func(w http.ResponseWriter, req *http.Request) {
		userID := req.URL.Query().Get("user_id")
		fact := req.URL.Query().Get("fact")
		if userID == "" || fact == "" {
			http.Error(w, "user_id and fact are required", http.StatusBadRequest)
			return
		}
		res, err := retriever.InsightsForFact(req.Context(), userID, fact)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, res)
	})

	r.Post("/ask", func(w http.ResponseWriter, req *http.Request) {
		var in struct {
			UserID   string `json:"user_id"`
			Question string `json:"question"`
		}
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if in.UserID == "" || in.Question == "" {
			http.Error(w, "user_id and question are required", http.StatusBadRequest)
			return
		}
		res, err := retriever.AnswerQuestion(req.Context(), in.UserID, in.Question)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, res)
	})

	r.Get("/facts", func(w http.ResponseWriter, req *http.Request) {
		fact := req.URL.Query().Get("fact")
		theme := req.URL.Query().Get("theme")
		if fact == "" && theme != "" {
			aggs, err := aggregates.ByTheme(req.Context(), theme)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, aggs)
			return
		}
		if fact == "" {
			http.Error(w, "fact or theme is required", http.StatusBadRequest)
			return
		}
		agg, err := aggregates.Get(req.Context(), fact, theme)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{
			"fact":      agg.Fact,
			"theme":     agg.Theme,
			"count":     agg.Count,
			"sums":      agg.EmotionSum,
			"promedios": agg.Averages(),
		})
	})

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r}

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		logger.Info("shutting down, draining detached runs")
		processor.Wait()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	logger.Info("starting sentira server",
		"addr", cfg.ListenAddr, "db", cfg.DBPath, "strict", taxonomy != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

// ------------ config & helpers ------------

type config struct {
	ListenAddr      string
	DBPath          string
	APIKey          string
	Model           string
	EmbedModel      string
	VectorDim       int
	Language        string
	TaxonomyPath    string
	RequestTimeout  time.Duration
	DetachedTimeout time.Duration
}

func loadConfig() config {
	return config{
		ListenAddr:      getenv("SENTIRA_LISTEN_ADDR", ":8080"),
		DBPath:          getenv("SENTIRA_DB_PATH", "sentira.db"),
		APIKey:          os.Getenv("OPENAI_API_KEY"),
		Model:           getenv("SENTIRA_MODEL", "gpt-4o-mini"),
		EmbedModel:      getenv("SENTIRA_EMBED_MODEL", "text-embedding-3-small"),
		VectorDim:       getenvInt("SENTIRA_VECTOR_DIM", 1536),
		Language:        getenv("SENTIRA_LANGUAGE", "es"),
		TaxonomyPath:    os.Getenv("SENTIRA_TAXONOMY_PATH"),
		RequestTimeout:  getenvDuration("SENTIRA_REQUEST_TIMEOUT", 60*time.Second),
		DetachedTimeout: getenvDuration("SENTIRA_DETACHED_TIMEOUT", 2*time.Minute),
	}
}

// loadTaxonomy reads the strict-mode reference structure. An empty path
// selects free-form extraction.
func loadTaxonomy(path string) (*model.Taxonomy, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t model.Taxonomy
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeError maps validation sentinels to 400, missing records to 404,
// everything else to 500, with a generic {error: message} body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrEmptyContent),
		errors.Is(err, model.ErrInvalidTheme),
		errors.Is(err, model.ErrInvalidFact):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
