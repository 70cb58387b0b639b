package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/sitegest/internal/pipeline"
)

func (s *Server) handleStartRun(kind pipeline.RunKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := s.runner.Submit(kind)
		if errors.Is(err, pipeline.ErrQueueFull) || errors.Is(err, pipeline.ErrStopped) {
			jsonError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}

		s.log.Info("run queued", "run_id", run.ID, "kind", kind, "queue_depth", s.runner.QueueDepth())
		writeJSON(w, http.StatusAccepted, map[string]any{
			"run_id": run.ID,
			"kind":   kind,
			"status": pipeline.StatusQueued,
		})
	}
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	run := s.runner.GetRun(chi.URLParam(r, "runID"))
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run.Snapshot())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
