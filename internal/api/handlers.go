// =================================
// File: internal/api/handlers.go
// =================================
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rustamli/aitrader/internal/bot"
)

type errorResponse struct {
	Type string `json:"type"`
	Msg  string `json:"message"`
}

func setResponse(response interface{}, statusCode int, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(response)
}

func (s *Server) setErrorResponse(err error, w http.ResponseWriter) {
	errType, statusCode := classifyError(err)
	if statusCode >= 500 {
		s.logger.Error("request failed", zap.Error(err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(&errorResponse{Type: errType, Msg: err.Error()})
}

// classifyError maps the domain error taxonomy onto HTTP status codes.
func classifyError(err error) (string, int) {
	var validationErr *bot.ValidationError
	var notFoundErr *bot.NotFoundError
	var stateErr *bot.InvalidStateError
	switch {
	case errors.As(err, &validationErr):
		return "validation_error", http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return "not_found", http.StatusNotFound
	case errors.As(err, &stateErr):
		return "invalid_state", http.StatusConflict
	default:
		return "internal_error", http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = setResponse(map[string]string{"status": "ok"}, http.StatusOK, w)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var spec bot.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.setErrorResponse(&bot.ValidationError{Field: "body", Reason: "malformed JSON"}, w)
		return
	}

	record, err := s.manager.Create(r.Context(), spec)
	if err != nil {
		s.setErrorResponse(err, w)
		return
	}

	s.logger.Info("bot created",
		zap.String("bot_id", record.ID),
		zap.String("name", record.Name))
	_ = setResponse(record, http.StatusCreated, w)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := s.manager.List(r.Context())
	if err != nil {
		s.setErrorResponse(err, w)
		return
	}
	_ = setResponse(map[string]interface{}{"bots": records, "count": len(records)}, http.StatusOK, w)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	record, err := s.manager.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.setErrorResponse(err, w)
		return
	}
	_ = setResponse(record, http.StatusOK, w)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	record, err := s.manager.Start(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.setErrorResponse(err, w)
		return
	}
	_ = setResponse(record, http.StatusOK, w)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	record, err := s.manager.Stop(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.setErrorResponse(err, w)
		return
	}
	_ = setResponse(record, http.StatusOK, w)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.manager.Delete(r.Context(), id); err != nil {
		s.setErrorResponse(err, w)
		return
	}
	_ = setResponse(map[string]string{"id": id, "status": "deleted"}, http.StatusOK, w)
}

type statusResponse struct {
	Bot     *bot.Record    `json:"bot"`
	Runtime *runtimeStatus `json:"runtime,omitempty"`
}

type runtimeStatus struct {
	Running   bool       `json:"running"`
	State     string     `json:"state"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info, err := s.manager.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.setErrorResponse(err, w)
		return
	}

	resp := statusResponse{Bot: info.Record}
	if info.Runtime != nil {
		resp.Runtime = &runtimeStatus{
			Running: info.Runtime.Running,
			State:   info.Runtime.State,
		}
		if !info.Runtime.StartedAt.IsZero() {
			startedAt := info.Runtime.StartedAt
			resp.Runtime.StartedAt = &startedAt
		}
	}
	_ = setResponse(resp, http.StatusOK, w)
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.setErrorResponse(&bot.ValidationError{Field: "limit", Reason: "must be a positive integer"}, w)
			return
		}
		limit = parsed
	}

	events, err := s.manager.Signals(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		s.setErrorResponse(err, w)
		return
	}
	_ = setResponse(map[string]interface{}{"signals": events, "count": len(events)}, http.StatusOK, w)
}
