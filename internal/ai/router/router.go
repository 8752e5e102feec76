// Package router picks a completion provider from a prefixed model id such as
// "google/gemini-2.5-flash" or "openai/gpt-4o".
package router

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/aura-hire/internal/ai"
	"github.com/spigell/aura-hire/internal/apperr"
)

type Router struct {
	providers map[string]ai.Provider
	fallback  string
	logger    *zap.Logger
}

// New creates a router. Model ids without a prefix are sent to the provider
// registered under fallback.
func New(fallback string, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		providers: make(map[string]ai.Provider),
		fallback:  strings.ToLower(strings.TrimSpace(fallback)),
		logger:    log,
	}
}

// Register adds a provider for a prefix. Registering the same prefix twice
// replaces the earlier provider.
func (r *Router) Register(prefix string, p ai.Provider) {
	r.providers[strings.ToLower(strings.TrimSpace(prefix))] = p
}

// Prefixes lists the registered prefixes in sorted order.
func (r *Router) Prefixes() []string {
	prefixes := make([]string, 0, len(r.providers))
	for prefix := range r.providers {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}

// Resolve returns the provider for a model id and the model name the provider
// expects.
func (r *Router) Resolve(model string) (ai.Provider, string, error) {
	model = strings.TrimSpace(model)

	prefix, name, found := strings.Cut(model, "/")
	if !found {
		prefix, name = r.fallback, model
	}
	prefix = strings.ToLower(prefix)

	p, ok := r.providers[prefix]
	if !ok {
		return nil, "", fmt.Errorf("%w: no provider for model %q", apperr.ErrCompletion, model)
	}
	return p, name, nil
}

func (r *Router) Complete(ctx context.Context, req ai.Request) iter.Seq2[ai.Chunk, error] {
	p, name, err := r.Resolve(req.Model)
	if err != nil {
		r.logger.Warn("model is not routable", zap.String("model", req.Model), zap.Strings("prefixes", r.Prefixes()))
		return ai.Fail(err)
	}

	req.Model = name
	return p.Complete(ctx, req)
}
