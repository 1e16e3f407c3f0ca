package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/analysis"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/classifier"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/models"
	"github.com/lehigh-university-libraries/laundry-sorter/internal/storage"
)

// DefaultMaxFiles caps how many images one upload may carry.
const DefaultMaxFiles = 20

// HealthChecker reports whether each classifier service is up.
type HealthChecker interface {
	CheckHealth(ctx context.Context) map[classifier.Service]bool
}

// Options configures a Handler.
type Options struct {
	Analyzer *analysis.Service
	Health   HealthChecker
	Store    *storage.BatchStore

	// BaseURLs are shown next to the service status in the sidebar.
	BaseURLs map[classifier.Service]string
	MaxFiles int

	// HTTPClient downloads images submitted by URL.
	HTTPClient *http.Client

	// OnBatch is called after a batch has been processed and stored.
	OnBatch func(*models.Batch)
}

type Handler struct {
	analyzer   *analysis.Service
	health     HealthChecker
	store      *storage.BatchStore
	baseURLs   map[classifier.Service]string
	maxFiles   int
	httpClient *http.Client
	onBatch    func(*models.Batch)
	pages      *pageSet
}

func New(opts Options) *Handler {
	h := &Handler{
		analyzer:   opts.Analyzer,
		health:     opts.Health,
		store:      opts.Store,
		baseURLs:   opts.BaseURLs,
		maxFiles:   opts.MaxFiles,
		httpClient: opts.HTTPClient,
		onBatch:    opts.OnBatch,
		pages:      mustParsePages(),
	}
	if h.store == nil {
		h.store = storage.New(storage.DefaultTTL)
	}
	if h.maxFiles <= 0 {
		h.maxFiles = DefaultMaxFiles
	}
	if h.httpClient == nil {
		h.httpClient = http.DefaultClient
	}
	return h
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/", h.HandleIndex)
	mux.HandleFunc("/analyze", h.HandleAnalyze)
	mux.HandleFunc("/batches/", h.HandleBatchPage)
	mux.HandleFunc("/api/batches", h.HandleBatches)
	mux.HandleFunc("/api/batches/", h.HandleBatchDetail)
	mux.HandleFunc("/api/upload", h.HandleUpload)
	mux.HandleFunc("/api/health", h.HandleHealth)
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message)
	http.Error(w, message, code)
}

// Batch helpers
func (h *Handler) getBatchOrError(w http.ResponseWriter, batchID string) (*models.Batch, bool) {
	batch, exists := h.store.Get(batchID)
	if !exists {
		h.writeError(w, "Batch not found", http.StatusNotFound)
		return nil, false
	}
	return batch, true
}

func (h *Handler) saveBatch(batch *models.Batch) {
	h.store.Set(batch)
	if h.onBatch != nil {
		h.onBatch(batch)
	}
}
