package server

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/spigell/aura-hire/internal/apperr"
	"github.com/spigell/aura-hire/internal/candidate"
)

type createCandidateRequest struct {
	Name     string `json:"name"`
	Position string `json:"position"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) listCandidates(w http.ResponseWriter, r *http.Request) {
	list, err := s.candidates.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createCandidate(w http.ResponseWriter, r *http.Request) {
	var req createCandidateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	c, err := s.candidates.Add(r.Context(), req.Name, req.Position)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) clearCandidates(w http.ResponseWriter, r *http.Request) {
	removed, err := s.candidates.Clear(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) getCandidate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	c, ok, err := s.candidates.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		s.fail(w, r, fmt.Errorf("%w: candidate %q", apperr.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) removeCandidate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	removed, err := s.candidates.Remove(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !removed {
		s.fail(w, r, fmt.Errorf("%w: candidate %q", apperr.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) updateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateStatusRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	status, err := candidate.ParseStatus(req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	updated, err := s.candidates.UpdateStatus(r.Context(), id, status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !updated {
		s.fail(w, r, fmt.Errorf("%w: candidate %q", apperr.ErrNotFound, id))
		return
	}

	c, _, err := s.candidates.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, err)
}
