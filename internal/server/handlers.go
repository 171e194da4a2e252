package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/johnayoung/go-oilprice-trend/internal/errors"
	"github.com/johnayoung/go-oilprice-trend/internal/rpc"
)

// readinessTimeout bounds the upstream probe behind /readyz.
const readinessTimeout = 5 * time.Second

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.rejectUnparsed(w, r, 0, parseError(err))
		return
	}

	call, err := rpc.DecodeCall(body)
	if err != nil {
		s.rejectUnparsed(w, r, call.ID, err)
		return
	}

	resp := s.dispatcher.Dispatch(r.Context(), call)
	s.writeJSON(w, r, resp.HTTPStatus(), resp)
}

// rejectUnparsed answers a body that never became a call.
func (s *Server) rejectUnparsed(w http.ResponseWriter, r *http.Request, id int, err error) {
	resp := rpc.NewErrorEnvelope(id, err)
	s.metrics.RecordRPCCall("unknown", string(resp.ErrorType()))
	s.logger.InfoWithContext(r.Context(), "rpc request rejected",
		slog.String("error_type", string(resp.ErrorType())),
		slog.String("reason", err.Error()))
	s.writeJSON(w, r, resp.HTTPStatus(), resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		s.writeJSON(w, r, http.StatusOK, statusResponse{Status: "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	if err := s.health.HealthCheck(ctx); err != nil {
		s.logger.WarnWithContext(r.Context(), "readiness check failed", slog.Any("error", err))
		s.writeJSON(w, r, http.StatusServiceUnavailable, statusResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	s.writeJSON(w, r, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.ErrorWithContext(r.Context(), "failed to write response", err)
	}
}

func parseError(err error) error {
	se := errors.New(errors.ErrorTypeParse, "server", "read_body", "Parse error")
	se.Data = err.Error()
	return se
}
