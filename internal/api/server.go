package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"quizgen/internal/config"
	"quizgen/internal/logger"
	"quizgen/internal/models"
	"quizgen/internal/realtime"
	"quizgen/internal/storage"
	"quizgen/internal/workflows"
)

// Store is the slice of storage the HTTP surface reads and writes.
type Store interface {
	UpsertUnits(ctx context.Context, units []models.ContentUnit) error
	ListUnits(ctx context.Context, documentID string) ([]models.ContentUnit, error)
	ListItems(ctx context.Context, documentID, unitID string) ([]models.GeneratedItem, error)
	CountItemsByUnit(ctx context.Context, unitIDs []string) (map[string]int, error)
	ClaimRun(ctx context.Context, documentID string) (bool, error)
	GetRun(ctx context.Context, documentID string) (models.RunProgress, error)
	MarkFailed(ctx context.Context, documentID, reason string) error
}

// Subscriber streams progress messages for one document.
type Subscriber interface {
	Subscribe(ctx context.Context, documentID string, onReady func() bool, onMsg func(realtime.ProgressMessage)) error
}

type Server struct {
	cfg      config.Config
	log      *logger.Logger
	store    Store
	launcher Launcher
	stream   Subscriber
}

// NewServer builds the handler set. stream may be nil when Redis is not
// configured; the SSE endpoint then answers 404.
func NewServer(cfg config.Config, store Store, launcher Launcher, stream Subscriber, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		cfg:      cfg,
		log:      log.With("service", "api"),
		store:    store,
		launcher: launcher,
		stream:   stream,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/documents/", s.handleDocumentsScoped)
	return withCORS(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDocumentsScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/documents/"), "/"), "/")
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	documentID := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "units":
		switch r.Method {
		case http.MethodGet:
			s.handleListUnits(w, r, documentID)
		case http.MethodPut, http.MethodPost:
			s.handleImportUnits(w, r, documentID)
		default:
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
	case len(parts) == 2 && parts[1] == "generate":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleGenerate(w, r, documentID)
	case len(parts) == 2 && parts[1] == "progress":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleProgress(w, r, documentID)
	case len(parts) == 3 && parts[1] == "progress" && parts[2] == "stream":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		s.handleProgressStream(w, r, documentID)
	case len(parts) == 2 && parts[1] == "items":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		items, err := s.store.ListItems(r.Context(), documentID, strings.TrimSpace(r.URL.Query().Get("unit")))
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"document_id": documentID, "items": items})
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleListUnits(w http.ResponseWriter, r *http.Request, documentID string) {
	units, err := s.store.ListUnits(r.Context(), documentID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	ids := make([]string, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.UnitID)
	}
	counts, err := s.store.CountItemsByUnit(r.Context(), ids)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]unitView, 0, len(units))
	for _, u := range units {
		out = append(out, unitView{ContentUnit: u, Items: counts[u.UnitID]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": documentID, "units": out})
}

type unitView struct {
	models.ContentUnit
	Items int `json:"items"`
}

func (s *Server) handleImportUnits(w http.ResponseWriter, r *http.Request, documentID string) {
	var req struct {
		Units []models.ContentUnit `json:"units"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	if len(req.Units) == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("at least one unit is required"))
		return
	}
	if run, err := s.store.GetRun(r.Context(), documentID); err == nil && run.Status == models.RunGenerating {
		writeErr(w, http.StatusConflict, fmt.Errorf("generation in progress"))
		return
	}
	for i := range req.Units {
		u := &req.Units[i]
		u.UnitID = strings.TrimSpace(u.UnitID)
		if u.UnitID == "" {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("unit_id is required"))
			return
		}
		u.DocumentID = documentID
		for j := range u.Concepts {
			u.Concepts[j].UnitID = u.UnitID
		}
	}
	if err := s.store.UpsertUnits(r.Context(), req.Units); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": documentID, "units": len(req.Units)})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request, documentID string) {
	var req struct {
		Niveau    string          `json:"niveau"`
		ItemTypes map[string]bool `json:"item_types"`
		Language  string          `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid json: %w", err))
		return
	}
	claimed, err := s.store.ClaimRun(r.Context(), documentID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if !claimed {
		writeErr(w, http.StatusConflict, fmt.Errorf("generation already running"))
		return
	}

	workflowID, runID, err := s.launcher.StartGeneration(r.Context(), workflows.QuizGenerationInput{
		DocumentID:     documentID,
		Niveau:         string(models.ParseNiveau(req.Niveau)),
		ItemTypes:      req.ItemTypes,
		Language:       req.Language,
		TimeoutSeconds: int(s.cfg.RunTimeout() / time.Second),
	})
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			writeErr(w, http.StatusConflict, err)
			return
		}
		if markErr := s.store.MarkFailed(context.WithoutCancel(r.Context()), documentID, "workflow start failed"); markErr != nil {
			s.log.Error("release run claim", "document_id", documentID, "error", markErr)
		}
		writeErr(w, http.StatusBadGateway, err)
		return
	}
	s.log.Info("generation started", "document_id", documentID, "workflow_id", workflowID)
	writeJSON(w, http.StatusAccepted, map[string]any{"document_id": documentID, "workflow_id": workflowID, "run_id": runID})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, documentID string) {
	run, err := s.store.GetRun(r.Context(), documentID)
	if errors.Is(err, storage.ErrRunNotFound) {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	out := map[string]any{"progress": run}
	if run.Status == models.RunGenerating && s.launcher != nil {
		// The run row is authoritative; the workflow view only adds step detail.
		if st, qErr := s.launcher.RunStatus(r.Context(), documentID); qErr == nil {
			out["workflow"] = st
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request, documentID string) {
	if s.stream == nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("progress stream disabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// the snapshot is read only once the subscription is live, so a final
	// message published in between is either in the row or on the channel
	lastPercent := -1
	ready := func() bool {
		run, err := s.store.GetRun(r.Context(), documentID)
		if err != nil {
			return true
		}
		event := realtime.EventProgress
		if run.Status.Terminal() {
			event = realtime.EventFinal
		}
		writeEvent(w, event, run)
		flusher.Flush()
		lastPercent = run.Percent
		return event != realtime.EventFinal
	}
	err := s.stream.Subscribe(r.Context(), documentID, ready, func(m realtime.ProgressMessage) {
		if m.Event != realtime.EventFinal && m.Progress.Percent < lastPercent {
			return
		}
		lastPercent = m.Progress.Percent
		writeEvent(w, m.Event, m.Progress)
		flusher.Flush()
	})
	if err != nil {
		s.log.Warn("progress stream ended", "document_id", documentID, "error", err)
	}
}

func writeEvent(w io.Writer, event string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, raw)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	msg := "Request failed."
	code := "QG-API-4000"
	raw := ""
	if err != nil {
		raw = strings.ToLower(err.Error())
	}

	switch {
	case status == http.StatusBadGateway:
		return apiError{
			Code:    "QG-API-5020",
			Message: "Workflow service unavailable. Retry shortly.",
		}
	case status >= 500:
		switch {
		case strings.Contains(raw, "relation") && strings.Contains(raw, "does not exist"):
			return apiError{
				Code:    "QG-DB-5001",
				Message: "Database schema is not initialized. Restart the worker and retry.",
			}
		case strings.Contains(raw, "connect"), strings.Contains(raw, "dial tcp"), strings.Contains(raw, "connection refused"):
			return apiError{
				Code:    "QG-DB-5002",
				Message: "Database connection is unavailable. Check local services and retry.",
			}
		default:
			return apiError{
				Code:    "QG-API-5000",
				Message: "Internal server error. Please retry or check service logs.",
			}
		}
	case status == http.StatusBadRequest:
		code = "QG-API-4001"
		msg = "Invalid request. Check inputs and retry."
	case status == http.StatusNotFound:
		code = "QG-API-4004"
		msg = "Requested resource was not found."
	case status == http.StatusConflict:
		code = "QG-API-4009"
		msg = "Operation conflicts with current state. Retry after checking status."
	case status == http.StatusMethodNotAllowed:
		code = "QG-API-4005"
		msg = "This endpoint does not support the requested method."
	}

	// For 4xx, keep user-safe validation context only.
	if status >= 400 && status < 500 && err != nil {
		switch {
		case strings.Contains(raw, "generation already running"), strings.Contains(raw, "generation in progress"):
			msg = "A generation run is already in progress for this document."
		case strings.Contains(raw, "at least one unit is required"):
			msg = "At least one content unit is required."
		case strings.Contains(raw, "unit_id is required"):
			msg = "Every content unit needs a unit_id."
		case strings.Contains(raw, "progress stream disabled"):
			msg = "Live progress streaming is not enabled."
		case strings.Contains(raw, "invalid json"):
			msg = "Malformed JSON request body."
		}
	}

	return apiError{Code: code, Message: msg}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
