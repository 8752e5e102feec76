// Package registry owns every candidate record of a deployment.
//
// The registry keeps the full candidate set in memory, loads it from the
// store on first use and writes the whole set back as a single blob after each
// mutation. All operations on one Registry are serialized; a mutation is only
// reported as successful once the blob has been written.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/aura-hire/internal/apperr"
	"github.com/spigell/aura-hire/internal/candidate"
	"github.com/spigell/aura-hire/internal/logger"
	"github.com/spigell/aura-hire/internal/store"
)

// StorageKey is the store key holding the candidate blob.
const StorageKey = "candidates"

type Registry struct {
	mu     sync.Mutex
	store  store.Store
	logger *zap.Logger

	now   func() time.Time
	newID func() string

	loaded     bool
	candidates map[string]candidate.Candidate
	lastTick   int64
	nextSeq    uint64
}

func New(s store.Store, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}

	return &Registry{
		store:      s,
		logger:     log,
		now:        time.Now,
		newID:      uuid.NewString,
		candidates: make(map[string]candidate.Candidate),
		nextSeq:    1,
	}
}

// Add creates a candidate in the Pending Interview status.
func (r *Registry) Add(ctx context.Context, name, position string) (candidate.Candidate, error) {
	name, position, err := candidate.ValidateNew(name, position)
	if err != nil {
		return candidate.Candidate{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return candidate.Candidate{}, err
	}

	id := r.newID()
	if _, taken := r.candidates[id]; taken {
		return candidate.Candidate{}, fmt.Errorf("%w: generated candidate id %q is already in use", apperr.ErrStorage, id)
	}

	now := r.tick()
	c := candidate.Candidate{
		ID:         id,
		Name:       name,
		Position:   position,
		AvatarURL:  candidate.AvatarURL(name),
		Status:     candidate.StatusPendingInterview,
		CreatedAt:  now,
		LastActive: now,
		Seq:        r.nextSeq,
	}
	r.nextSeq++

	r.candidates[id] = c
	if err := r.persist(ctx); err != nil {
		delete(r.candidates, id)
		return candidate.Candidate{}, err
	}

	r.logger.Info("candidate created",
		append(logger.CandidateFields(id), zap.String("position", position))...,
	)

	return c, nil
}

// Remove deletes a candidate. It reports false without touching the store when
// the id is unknown.
func (r *Registry) Remove(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return false, err
	}

	existing, ok := r.candidates[id]
	if !ok {
		return false, nil
	}

	delete(r.candidates, id)
	if err := r.persist(ctx); err != nil {
		r.candidates[id] = existing
		return false, err
	}

	r.logger.Info("candidate removed", logger.CandidateFields(id)...)
	return true, nil
}

// UpdateStatus sets the status of a candidate and refreshes LastActive.
// Any known status is accepted regardless of the current one.
func (r *Registry) UpdateStatus(ctx context.Context, id string, status candidate.Status) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", apperr.ErrValidation, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return false, err
	}

	previous, ok := r.candidates[id]
	if !ok {
		return false, nil
	}

	updated := previous
	updated.Status = status
	updated.LastActive = r.tick()

	r.candidates[id] = updated
	if err := r.persist(ctx); err != nil {
		r.candidates[id] = previous
		return false, err
	}

	r.logger.Info("candidate status updated",
		append(logger.CandidateFields(id),
			zap.String("from", previous.Status.String()),
			zap.String("to", status.String()),
		)...,
	)

	return true, nil
}

// List returns all candidates, most recently created first.
func (r *Registry) List(ctx context.Context) ([]candidate.Candidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	list := make([]candidate.Candidate, 0, len(r.candidates))
	for _, c := range r.candidates {
		list = append(list, c)
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt != list[j].CreatedAt {
			return list[i].CreatedAt > list[j].CreatedAt
		}
		return list[i].Seq < list[j].Seq
	})

	return list, nil
}

func (r *Registry) Get(ctx context.Context, id string) (candidate.Candidate, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return candidate.Candidate{}, false, err
	}

	c, ok := r.candidates[id]
	return c, ok, nil
}

// Clear removes every candidate and returns how many there were.
func (r *Registry) Clear(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return 0, err
	}

	previous := r.candidates
	count := len(previous)

	r.candidates = make(map[string]candidate.Candidate)
	if err := r.persist(ctx); err != nil {
		r.candidates = previous
		return 0, err
	}

	r.logger.Info("candidates cleared", zap.Int("count", count))
	return count, nil
}

func (r *Registry) Len(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	return len(r.candidates), nil
}

// tick returns the current time in milliseconds, forced past the previous
// value so that timestamps issued by one registry strictly increase.
func (r *Registry) tick() int64 {
	now := r.now().UnixMilli()
	if now <= r.lastTick {
		now = r.lastTick + 1
	}
	r.lastTick = now
	return now
}

func (r *Registry) ensureLoaded(ctx context.Context) error {
	if r.loaded {
		return nil
	}

	data, ok, err := r.store.Get(ctx, StorageKey)
	if err != nil {
		return fmt.Errorf("load candidates: %w: %w", apperr.ErrStorage, err)
	}

	loaded := make(map[string]candidate.Candidate)
	if ok {
		loaded, err = decodeCandidates(data)
		if err != nil {
			return fmt.Errorf("load candidates: %w: %w", apperr.ErrStorage, err)
		}
	}

	r.candidates = loaded
	r.lastTick, r.nextSeq = restoreCounters(loaded)
	r.loaded = true

	r.logger.Debug("candidates loaded", zap.Int("count", len(loaded)))
	return nil
}

func (r *Registry) persist(ctx context.Context) error {
	data, err := encodeCandidates(r.candidates)
	if err != nil {
		return fmt.Errorf("persist candidates: %w: %w", apperr.ErrStorage, err)
	}

	if err := r.store.Put(ctx, StorageKey, data); err != nil {
		r.logger.Error("persisting candidates failed", zap.Int("count", len(r.candidates)), zap.Error(err))
		return fmt.Errorf("persist candidates: %w: %w", apperr.ErrStorage, err)
	}

	return nil
}
