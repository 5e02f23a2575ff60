package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/wrongjunior/eventbridge/internal/domain"
	"github.com/wrongjunior/eventbridge/internal/repository"
	"github.com/wrongjunior/eventbridge/internal/service"
)

const (
	helloMessage    = "Hello from Axum to Tauri!"
	defaultListSize = 50
	maxListSize     = 500
)

// Emitter queues a message for the frontend.
type Emitter interface {
	Send(ctx context.Context, message string) error
}

// Downloads is the download-info use case behind the HTTP API.
type Downloads interface {
	Receive(ctx context.Context, info domain.DownloadFileInfo) error
	Recent(ctx context.Context, limit int) ([]repository.DownloadRecord, error)
}

// Handler serves the backend HTTP API.
type Handler struct {
	Emitter   Emitter
	Downloads Downloads
	Logger    *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(emitter Emitter, downloads Downloads, logger *zap.Logger) *Handler {
	return &Handler{
		Emitter:   emitter,
		Downloads: downloads,
		Logger:    logger.Named("http"),
	}
}

// RouterOptions wires the routes that are served by other components.
type RouterOptions struct {
	WSPath    string
	WebSocket http.HandlerFunc
	Metrics   http.Handler
}

// SetupRouter builds the chi router with permissive CORS.
func SetupRouter(h *Handler, options RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodConnect, http.MethodOptions, http.MethodTrace,
		},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/", h.hello)
	r.Get("/health_check", h.healthCheck)
	r.Post("/download_file_info", h.receiveDownloadFileInfo)
	r.Get("/downloads", h.listDownloads)
	r.Get("/greet/{name}", h.greet)

	if options.WebSocket != nil {
		r.Get(options.WSPath, options.WebSocket)
	}
	if options.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", options.Metrics)
	}
	return r
}

func (h *Handler) hello(w http.ResponseWriter, r *http.Request) {
	if err := h.Emitter.Send(r.Context(), helloMessage); err != nil {
		h.Logger.Warn("hello not forwarded", zap.Error(err))
	}
	writeText(w, http.StatusOK, "Hello from Axum!")
}

func (h *Handler) healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "OK")
}

func (h *Handler) receiveDownloadFileInfo(w http.ResponseWriter, r *http.Request) {
	var info domain.DownloadFileInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		http.Error(w, "Bad request.", http.StatusBadRequest)
		return
	}

	if err := h.Downloads.Receive(r.Context(), info); err != nil {
		h.Logger.Error("download info not stored", zap.Error(err))
		http.Error(w, "Internal server error.", http.StatusInternalServerError)
		return
	}

	writeText(w, http.StatusOK, "Download info received and sent to Tauri")
}

func (h *Handler) listDownloads(w http.ResponseWriter, r *http.Request) {
	limit := defaultListSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Bad request.", http.StatusBadRequest)
			return
		}
		limit = min(n, maxListSize)
	}

	records, err := h.Downloads.Recent(r.Context(), limit)
	if err != nil {
		h.Logger.Error("list downloads failed", zap.Error(err))
		http.Error(w, "Internal server error.", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		h.Logger.Error("encode downloads failed", zap.Error(err))
	}
}

func (h *Handler) greet(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, service.Greet(chi.URLParam(r, "name")))
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
