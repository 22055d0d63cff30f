package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stellarlinkco/coachd/internal/guard"
	"github.com/stellarlinkco/coachd/internal/logpipe"
	"github.com/stellarlinkco/coachd/internal/orchestrator"
	"github.com/stellarlinkco/coachd/internal/store"
)

// Server exposes the orchestrator's three operations over HTTP/JSON.
type Server struct {
	orch   *orchestrator.Orchestrator
	logger *log.Logger
	http   *http.Server
}

func New(orch *orchestrator.Orchestrator, addr string) *Server {
	s := &Server{
		orch:   orch,
		logger: log.New(log.Writer(), "[server] ", log.LstdFlags),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/v1/messages", s.handleProcessMessage)
	r.Post("/v1/pending/{id}/confirm", s.handleConfirm)
	r.Post("/v1/pending/{id}/cancel", s.handleCancel)
	return r
}

// ListenAndServe blocks until the context is cancelled, then drains.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

type processRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text"`
}

func (s *Server) handleProcessMessage(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "user_id and text are required")
		return
	}

	result, err := s.orch.ProcessMessage(r.Context(), req.UserID, req.ConversationID, req.Text)
	if err != nil {
		s.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type confirmRequest struct {
	UserID string             `json:"user_id"`
	Edits  map[string]float64 `json:"edits,omitempty"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	edits := make(logpipe.Edits, len(req.Edits))
	for key, value := range req.Edits {
		idx, err := strconv.Atoi(key)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid edit index %q", key))
			return
		}
		edits[idx] = value
	}

	outcome, err := s.orch.ConfirmPendingLog(r.Context(), req.UserID, chi.URLParam(r, "id"), edits)
	if err != nil {
		s.writeConfirmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type cancelRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	outcome, err := s.orch.CancelPendingLog(r.Context(), req.UserID, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		s.writeConfirmError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, guard.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many messages, slow down a little")
	case errors.Is(err, guard.ErrMessageTooLong):
		writeError(w, http.StatusRequestEntityTooLarge, "message too long")
	default:
		s.logger.Printf("process message: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeConfirmError(w http.ResponseWriter, err error) {
	var resErr *logpipe.ResolutionError
	switch {
	case errors.As(err, &resErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": "resolution failed",
			"items": resErr.Items,
		})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "pending log not found")
	case errors.Is(err, logpipe.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "pending log already cancelled")
	default:
		s.logger.Printf("pending log operation: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
