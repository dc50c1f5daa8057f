package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"cryptohunter/internal/bot"
)

type response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok", Message: string(s.ctrl.Status().State)})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Start(); err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Status: "success", Message: "Bot started."})
}

// handleStop blocks until the loop has exited.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Stop(); err != nil {
		s.writeControlError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response{Status: "success", Message: "Bot stopped."})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// writeControlError reports rejected state transitions as conflicts.
func (s *Server) writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bot.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "Bot is already running.")
	case errors.Is(err, bot.ErrAlreadyStopped):
		writeError(w, http.StatusConflict, "Bot is not running.")
	case errors.Is(err, bot.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "Bot is shutting down.")
	default:
		s.logger.Error("Server: control request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"error","message":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Status: "error", Message: msg})
}
