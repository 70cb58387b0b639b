package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/sitegest/internal/store"
)

// Basic mode stores records by crawl ordinal (page_{n}.json), so there is
// no page_id or chunk_hash to look them up by.
const basicModeLookup = "not found: records are keyed by page_id and chunk_hash only in deduplicate mode"

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Deduplicate {
		jsonError(w, basicModeLookup, http.StatusNotFound)
		return
	}
	page, err := s.pages.Get(chi.URLParam(r, "pageID"))
	s.writeRecord(w, page, page == nil, err)
}

func (s *Server) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Deduplicate {
		jsonError(w, basicModeLookup, http.StatusNotFound)
		return
	}
	chunk, err := s.chunks.Get(chi.URLParam(r, "hash"))
	s.writeRecord(w, chunk, chunk == nil, err)
}

func (s *Server) writeRecord(w http.ResponseWriter, record any, missing bool, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidKey):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		s.log.Error("read record", "error", err)
		jsonError(w, "failed to read record", http.StatusInternalServerError)
	case missing:
		jsonError(w, "not found", http.StatusNotFound)
	default:
		writeJSON(w, http.StatusOK, record)
	}
}
