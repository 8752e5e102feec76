package interview

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/aura-hire/internal/ai"
	"github.com/spigell/aura-hire/internal/apperr"
	"github.com/spigell/aura-hire/internal/candidate"
	"github.com/spigell/aura-hire/internal/logger"
)

// CandidateSource looks candidates up by id. *registry.Registry satisfies it.
type CandidateSource interface {
	Get(ctx context.Context, id string) (candidate.Candidate, bool, error)
}

type ManagerConfig struct {
	Persona Persona
	// DefaultModel is used when Start is called without a model.
	DefaultModel string
}

// Manager keeps the sessions of a process in memory, keyed by session id.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	candidates CandidateSource
	provider   ai.Provider
	cfg        ManagerConfig
	logger     *zap.Logger

	newID func() string
}

func NewManager(candidates CandidateSource, provider ai.Provider, cfg ManagerConfig, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}

	return &Manager{
		sessions:   make(map[string]*Session),
		candidates: candidates,
		provider:   provider,
		cfg:        cfg,
		logger:     log,
		newID:      uuid.NewString,
	}
}

// Start opens a new session for a registered candidate and seeds the greeting.
func (m *Manager) Start(ctx context.Context, candidateID, model string) (*Session, error) {
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return nil, fmt.Errorf("%w: candidate id is required", apperr.ErrValidation)
	}

	model = strings.TrimSpace(model)
	if model == "" {
		model = m.cfg.DefaultModel
	}

	c, ok, err := m.candidates.Get(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: candidate %q", apperr.ErrNotFound, candidateID)
	}

	session := NewSession(SessionConfig{
		ID:       m.newID(),
		Provider: m.provider,
		Persona:  m.cfg.Persona,
		Logger:   m.logger,
	})
	if _, err := session.Start(c, model); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	return session, nil
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: interview session %q", apperr.ErrNotFound, sessionID)
	}
	return session, nil
}

func (m *Manager) Send(ctx context.Context, sessionID, text, model string, onChunk func(string)) ([]ChatMessage, error) {
	session, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return session.Send(ctx, text, model, onChunk)
}

func (m *Manager) Messages(sessionID string) ([]ChatMessage, error) {
	session, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return session.Messages(), nil
}

// Restart drops the transcript of a session and greets the candidate again.
func (m *Manager) Restart(sessionID string) ([]ChatMessage, error) {
	session, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return session.Start(session.Candidate(), session.Model())
}

// End forgets a session. It reports false when the id is unknown.
func (m *Manager) End(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return false
	}
	delete(m.sessions, sessionID)

	m.logger.Info("interview ended", logger.StringFields(logger.StringField{Key: logger.FieldSessionID, Value: sessionID})...)
	return true
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
