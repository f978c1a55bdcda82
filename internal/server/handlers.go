package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pagepilot/internal/entity"
)

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req entity.RunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)

		return
	}

	resp, err := s.usecase.Automation.Run(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)

		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	var req entity.MapRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)

		return
	}

	resp, err := s.usecase.Automation.Map(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)

		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req entity.ExtractRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)

		return
	}

	resp, err := s.usecase.Automation.Extract(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)

		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	var req entity.DescribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)

		return
	}

	resp, err := s.usecase.Automation.Describe(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)

		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleListArtifacts answers with the artifacts keyed by their kind, e.g.
// {"results": [...]}.
func (s *Server) handleListArtifacts(kind entity.ArtifactKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		artifacts, err := s.usecase.Automation.ListArtifacts(kind)
		if err != nil {
			s.respondError(w, r, err)

			return
		}

		respondJSON(w, http.StatusOK, map[string][]entity.Artifact{string(kind): artifacts})
	}
}

func (s *Server) handleStartSelection(w http.ResponseWriter, r *http.Request) {
	var req entity.SelectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)

		return
	}

	session, err := s.usecase.Selection.Start(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)

		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"session": session,
	})
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	state, err := s.usecase.Selection.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)

		return
	}

	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleStopSelection(w http.ResponseWriter, r *http.Request) {
	if err := s.usecase.Selection.Stop(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)

		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
