// Package interview runs conversational interviews against a completion
// provider.
//
// A Session owns one transcript. Only one Send can be in flight per session;
// the provider stream is consumed without holding the session lock so the
// committed transcript can be read while a reply is streaming.
package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/aura-hire/internal/ai"
	"github.com/spigell/aura-hire/internal/apperr"
	"github.com/spigell/aura-hire/internal/candidate"
	"github.com/spigell/aura-hire/internal/logger"
	"github.com/spigell/aura-hire/internal/utils"
)

const maxLogLength = 120

type SessionConfig struct {
	ID       string
	Provider ai.Provider
	Persona  Persona
	Logger   *zap.Logger
}

type Session struct {
	mu       sync.Mutex
	id       string
	provider ai.Provider
	persona  Persona
	base     *zap.Logger
	logger   *zap.Logger

	now   func() time.Time
	newID func() string

	started   bool
	candidate candidate.Candidate
	model     string
	messages  []ChatMessage
	state     State
	lastTick  int64
}

func NewSession(cfg SessionConfig) *Session {
	id := strings.TrimSpace(cfg.ID)
	if id == "" {
		id = uuid.NewString()
	}

	base := logger.WithFields(cfg.Logger, logger.StringFields(logger.StringField{Key: logger.FieldSessionID, Value: id})...)

	return &Session{
		id:       id,
		provider: cfg.Provider,
		persona:  cfg.Persona,
		base:     base,
		logger:   base,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

func (s *Session) CandidateID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candidate.ID
}

func (s *Session) Candidate() candidate.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.candidate
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the committed transcript. Fragments of a reply
// that is still streaming are not included.
func (s *Session) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Start discards any previous transcript and seeds it with the greeting for c.
func (s *Session) Start(c candidate.Candidate, model string) ([]ChatMessage, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, fmt.Errorf("%w: model is required", apperr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return nil, fmt.Errorf("%w: a reply is still in progress", apperr.ErrBusy)
	}

	s.started = true
	s.candidate = c
	s.model = model
	s.messages = []ChatMessage{s.newMessage(ai.RoleAssistant, s.persona.Greeting(c))}
	s.logger = logger.WithFields(s.base, logger.CandidateFields(c.ID)...)

	s.logger.Info("interview started", zap.String("model", model))
	return s.snapshot(), nil
}

// Send records text as the next user turn and streams the reply. onChunk is
// called once per reply fragment, in arrival order, outside the session lock.
//
// An empty modelID means the session model. On failure the user message stays
// in the transcript, partial reply text is dropped and the error wraps
// apperr.ErrCompletion; cancelling ctx counts as such a failure.
func (s *Session) Send(ctx context.Context, text, modelID string, onChunk func(string)) ([]ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message is required", apperr.ErrValidation)
	}

	req, err := s.begin(text, strings.TrimSpace(modelID))
	if err != nil {
		return nil, err
	}

	committed := false
	defer func() {
		if !committed {
			s.abort()
		}
	}()

	reply, err := s.consume(ctx, req, onChunk)
	if err != nil {
		s.logger.Warn("interview reply failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", apperr.ErrCompletion, err)
	}

	committed = true
	return s.commit(reply), nil
}

func (s *Session) begin(text, modelID string) (ai.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ai.Request{}, fmt.Errorf("%w: interview has not been started", apperr.ErrValidation)
	}
	if modelID != "" && modelID != s.model {
		return ai.Request{}, fmt.Errorf("%w: session uses model %q, got %q", apperr.ErrValidation, s.model, modelID)
	}
	if s.state != StateIdle {
		return ai.Request{}, fmt.Errorf("%w: a reply is still in progress", apperr.ErrBusy)
	}

	s.messages = append(s.messages, s.newMessage(ai.RoleUser, text))
	s.state = StateAwaitingReply

	s.logger.Debug("user message recorded",
		zap.Int("transcript_length", len(s.messages)),
		zap.String("message_preview", utils.TruncateForLog(text, maxLogLength)),
	)

	return ai.Request{
		Model:    s.model,
		System:   s.persona.SystemPrompt(s.candidate),
		Messages: toAIMessages(s.messages),
	}, nil
}

var errEmptyReply = errors.New("provider returned an empty reply")

func (s *Session) consume(ctx context.Context, req ai.Request, onChunk func(string)) (string, error) {
	if s.provider == nil {
		return "", errors.New("no completion provider configured")
	}

	var (
		builder   strings.Builder
		finalText string
		streaming bool
	)

	for chunk, err := range s.provider.Complete(ctx, req) {
		if err != nil {
			return "", err
		}
		if chunk.Final {
			finalText = chunk.Text
			continue
		}
		if chunk.Text == "" {
			continue
		}

		if !streaming {
			streaming = true
			s.setState(StateStreaming)
		}

		builder.WriteString(chunk.Text)
		if onChunk != nil {
			onChunk(chunk.Text)
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	reply := builder.String()
	if strings.TrimSpace(finalText) != "" {
		reply = finalText
	}
	if strings.TrimSpace(reply) == "" {
		return "", errEmptyReply
	}
	return reply, nil
}

func (s *Session) commit(reply string) []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, s.newMessage(ai.RoleAssistant, reply))
	s.state = StateIdle

	s.logger.Debug("assistant reply committed",
		zap.Int("transcript_length", len(s.messages)),
		zap.String("reply_preview", utils.TruncateForLog(reply, maxLogLength)),
	)
	return s.snapshot()
}

func (s *Session) abort() {
	s.setState(StateIdle)
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Session) newMessage(role ai.Role, content string) ChatMessage {
	return ChatMessage{
		ID:        s.newID(),
		Role:      role,
		Content:   content,
		Timestamp: s.tick(),
	}
}

func (s *Session) tick() int64 {
	now := s.now().UnixMilli()
	if now <= s.lastTick {
		now = s.lastTick + 1
	}
	s.lastTick = now
	return now
}

func (s *Session) snapshot() []ChatMessage {
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}
