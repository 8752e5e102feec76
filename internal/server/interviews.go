package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/spigell/aura-hire/internal/apperr"
	"github.com/spigell/aura-hire/internal/interview"
	"github.com/spigell/aura-hire/internal/logger"
)

type startInterviewRequest struct {
	CandidateID string `json:"candidateId"`
	Model       string `json:"model"`
}

type sendMessageRequest struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

type interviewResponse struct {
	SessionID   string                  `json:"sessionId"`
	CandidateID string                  `json:"candidateId"`
	Model       string                  `json:"model"`
	Messages    []interview.ChatMessage `json:"messages"`
}

func (s *Server) startInterview(w http.ResponseWriter, r *http.Request) {
	var req startInterviewRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	session, err := s.interviews.Start(r.Context(), req.CandidateID, req.Model)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, interviewResponse{
		SessionID:   session.ID(),
		CandidateID: session.CandidateID(),
		Model:       session.Model(),
		Messages:    session.Messages(),
	})
}

func (s *Server) interviewMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.interviews.Messages(r.PathValue("sessionId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) restartInterview(w http.ResponseWriter, r *http.Request) {
	messages, err := s.interviews.Restart(r.PathValue("sessionId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) endInterview(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	if !s.interviews.End(sessionID) {
		s.fail(w, r, fmt.Errorf("%w: interview session %q", apperr.ErrNotFound, sessionID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID})
}

// sendMessage streams the reply as server-sent events: one "chunk" event per
// fragment, then "done" with the transcript or "error". Errors raised before
// the first fragment are answered as a plain JSON error instead.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	var req sendMessageRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	session, err := s.interviews.Get(sessionID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	events := newEventStream(w)
	messages, err := session.Send(r.Context(), req.Message, req.Model, func(fragment string) {
		events.send("chunk", map[string]string{"text": fragment})
	})
	if err != nil {
		if !events.opened {
			s.fail(w, r, err)
			return
		}
		s.logger.Warn("interview stream failed",
			append(logger.SessionFields(sessionID, session.CandidateID()), zap.Error(err))...,
		)
		events.send("error", map[string]string{"error": err.Error()})
		return
	}

	events.send("done", map[string]any{"messages": messages})
}

type eventStream struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	opened bool
}

func newEventStream(w http.ResponseWriter) *eventStream {
	return &eventStream{w: w, rc: http.NewResponseController(w)}
}

func (e *eventStream) open() {
	if e.opened {
		return
	}
	e.opened = true

	h := e.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	e.w.WriteHeader(http.StatusOK)
}

func (e *eventStream) send(event string, payload any) {
	e.open()

	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(`{}`)
	}

	fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data)
	_ = e.rc.Flush()
}
