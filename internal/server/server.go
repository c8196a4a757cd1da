// Package server exposes the HTTP intake API the host application talks to:
// lifecycle events, composer actions, runtime settings, and the audit trail.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ordernotify/internal/composer"
	"ordernotify/internal/dispatch"
	"ordernotify/internal/domain"
	"ordernotify/internal/metrics"
)

const maxBodySize = 1 << 20 // 1MB

type Server struct {
	host   string
	port   int
	logger *slog.Logger
	server *http.Server

	bus      domain.EventBus
	comp     *composer.Composer
	settings domain.SettingsStore
	audit    domain.AuditTrail

	metricsEnabled  bool
	metricsEndpoint string
}

type Config struct {
	Host            string
	Port            int
	Logger          *slog.Logger
	Bus             domain.EventBus
	Composer        *composer.Composer
	Settings        domain.SettingsStore
	Audit           domain.AuditTrail
	MetricsEnabled  bool
	MetricsEndpoint string
}

func New(cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8390
	}
	if cfg.MetricsEndpoint == "" {
		cfg.MetricsEndpoint = "/metrics"
	}
	return &Server{
		host:            cfg.Host,
		port:            cfg.Port,
		logger:          cfg.Logger,
		bus:             cfg.Bus,
		comp:            cfg.Composer,
		settings:        cfg.Settings,
		audit:           cfg.Audit,
		metricsEnabled:  cfg.MetricsEnabled,
		metricsEndpoint: cfg.MetricsEndpoint,
	}
}

// Handler returns the API handler (exposed for tests).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/events", s.handleEvent)
	mux.HandleFunc("POST /api/composer/open", s.handleComposerOpen)
	mux.HandleFunc("POST /api/composer/send", s.handleComposerSend)
	mux.HandleFunc("GET /api/settings", s.handleSettingsList)
	mux.HandleFunc("PUT /api/settings/{key}", s.handleSettingsPut)
	mux.HandleFunc("GET /api/audit", s.handleAuditList)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metricsEnabled {
		mux.HandleFunc("GET "+s.metricsEndpoint, metrics.Collector.Handler())
	}

	return mux
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("intake API listening", "addr", addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// --- Handlers ---

type eventRequest struct {
	Type  string          `json:"type"`
	Order domain.OrderRef `json:"order"`
}

// handleEvent accepts a lifecycle event and enqueues it. The response is
// 202 regardless of delivery outcome: the host's transition has already
// committed and notification failure must not be reported as its failure.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}

	kind := domain.EventKind(req.Type)
	switch kind {
	case domain.EventOrderConfirmed, domain.EventOrderCancelled:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown event type: %s", req.Type))
		return
	}
	if req.Order.Name == "" {
		writeError(w, http.StatusBadRequest, "order.name is required")
		return
	}

	s.bus.Publish(domain.OrderEvent{
		Kind:      kind,
		Order:     req.Order,
		Timestamp: time.Now(),
	})

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleComposerOpen(w http.ResponseWriter, r *http.Request) {
	var order domain.OrderRef
	if err := decodeJSON(w, r, &order); err != nil {
		return
	}
	if order.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	form, err := s.comp.Open(r.Context(), order)
	if err != nil {
		s.logger.Error("composer open failed", "order", order.Name, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to prepare the message form")
		return
	}

	writeJSON(w, http.StatusOK, form)
}

func (s *Server) handleComposerSend(w http.ResponseWriter, r *http.Request) {
	var form domain.ComposerForm
	if err := decodeJSON(w, r, &form); err != nil {
		return
	}
	if form.Order.Name == "" {
		writeError(w, http.StatusBadRequest, "order.name is required")
		return
	}

	if err := s.comp.Submit(r.Context(), form); err != nil {
		s.writeDispatchError(w, form.Order.Name, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handleSettingsList(w http.ResponseWriter, r *http.Request) {
	values, err := s.settings.List(r.Context())
	if err != nil {
		s.logger.Error("settings list failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to read settings")
		return
	}
	if _, ok := values[dispatch.KeyUploadToken]; ok {
		values[dispatch.KeyUploadToken] = "***"
	}
	writeJSON(w, http.StatusOK, values)
}

type settingRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req settingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return
	}

	if err := s.settings.Set(r.Context(), key, req.Value); err != nil {
		s.logger.Error("setting update failed", "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store setting")
		return
	}
	s.logger.Info("setting updated", "key", key)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	orderName := r.URL.Query().Get("order")
	if orderName == "" {
		writeError(w, http.StatusBadRequest, "order query parameter is required")
		return
	}

	entries, err := s.audit.ListAudit(r.Context(), orderName, 50)
	if err != nil {
		s.logger.Error("audit list failed", "order", orderName, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to read audit trail")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// writeDispatchError maps dispatcher errors to responses. Configuration
// problems carry their full text (they are actionable by the operator);
// delivery failures surface only the generic user message, the transport
// detail stays in the logs.
func (s *Server) writeDispatchError(w http.ResponseWriter, orderName string, err error) {
	var missing *domain.SettingsMissingError
	if errors.As(err, &missing) {
		writeError(w, http.StatusUnprocessableEntity, missing.Error())
		return
	}
	var delivery *domain.DeliveryError
	if errors.As(err, &delivery) {
		writeError(w, http.StatusBadGateway, delivery.UserMessage())
		return
	}
	s.logger.Error("composer send failed", "order", orderName, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// --- Helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
