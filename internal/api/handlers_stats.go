package api

import (
	"net/http"

	"github.com/dgallion1/sitegest/internal/ledger"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	pages, err := s.pages.Count()
	if err != nil {
		jsonError(w, "failed to count pages: "+err.Error(), http.StatusInternalServerError)
		return
	}
	chunkFiles, err := s.chunks.Files()
	if err != nil {
		jsonError(w, "failed to count chunks: "+err.Error(), http.StatusInternalServerError)
		return
	}

	stats := map[string]any{
		"mode":        s.cfg.Mode(),
		"pages":       pages,
		"chunks":      len(chunkFiles),
		"queue_depth": s.runner.QueueDepth(),
	}
	if s.cfg.Deduplicate {
		loaded, err := ledger.Load(s.cfg.LedgerPath())
		if err != nil {
			jsonError(w, "failed to read ledger: "+err.Error(), http.StatusInternalServerError)
			return
		}
		stats["ledger"] = map[string]any{
			"state":  loaded.State.String(),
			"hashes": len(loaded.Hashes),
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.claude == nil || s.claude.Stats == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model": s.claude.Model(),
		"stats": s.claude.Stats.Snapshot(),
	})
}
