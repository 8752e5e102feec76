// Package ai describes the completion providers interviews talk to.
package ai

import (
	"context"
	"iter"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Request is one completion call: the conversation so far and the model to use.
type Request struct {
	Model    string
	System   string
	Messages []Message
}

// Chunk is one element of a completion stream. A chunk with Final set carries
// the provider's finalized reply text instead of a fragment.
type Chunk struct {
	Text  string
	Final bool
}

// Provider produces a reply as a lazy, single-use stream of chunks. The stream
// ends after the last chunk, or after yielding a non-nil error.
type Provider interface {
	Complete(ctx context.Context, req Request) iter.Seq2[Chunk, error]
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, req Request) iter.Seq2[Chunk, error]

func (f ProviderFunc) Complete(ctx context.Context, req Request) iter.Seq2[Chunk, error] {
	return f(ctx, req)
}

// Fail returns a stream that yields only err.
func Fail(err error) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		yield(Chunk{}, err)
	}
}
