package interview

import (
	"context"
	"errors"
	"iter"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/aura-hire/internal/ai"
	"github.com/spigell/aura-hire/internal/apperr"
	"github.com/spigell/aura-hire/internal/candidate"
)

const testModel = "scripted/default"

var jane = candidate.Candidate{ID: "cand-1", Name: "Jane Doe", Position: "Beauty Host"}

type step struct {
	text  string
	final bool
	err   error
}

// stubProvider replays the same steps on every call and records requests.
type stubProvider struct {
	steps    []step
	requests []ai.Request
}

func (p *stubProvider) Complete(_ context.Context, req ai.Request) iter.Seq2[ai.Chunk, error] {
	p.requests = append(p.requests, req)
	return func(yield func(ai.Chunk, error) bool) {
		for _, s := range p.steps {
			if s.err != nil {
				yield(ai.Chunk{}, s.err)
				return
			}
			if !yield(ai.Chunk{Text: s.text, Final: s.final}, nil) {
				return
			}
		}
	}
}

// gatedProvider yields "Hel", then waits for release before yielding "lo".
type gatedProvider struct {
	release chan struct{}
}

func (p *gatedProvider) Complete(ctx context.Context, _ ai.Request) iter.Seq2[ai.Chunk, error] {
	return func(yield func(ai.Chunk, error) bool) {
		if !yield(ai.Chunk{Text: "Hel"}, nil) {
			return
		}
		select {
		case <-p.release:
		case <-ctx.Done():
			yield(ai.Chunk{}, ctx.Err())
			return
		}
		yield(ai.Chunk{Text: "lo"}, nil)
	}
}

func newStartedSession(t *testing.T, provider ai.Provider) *Session {
	t.Helper()

	s := NewSession(SessionConfig{ID: "sess-1", Provider: provider, Logger: zap.NewNop()})
	frozen := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { return frozen }

	if _, err := s.Start(jane, testModel); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func TestStartSeedsGreeting(t *testing.T) {
	s := newStartedSession(t, &stubProvider{})

	messages := s.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected one greeting message, got %d", len(messages))
	}

	want := "Hello Jane Doe, welcome to your interview with L'Occitane. I am Aura, your AI interviewer for today. " +
		"We will go through a series of questions to understand your skills and experience for the Beauty Host role. " +
		"Please take your time to answer. Are you ready to begin?"
	if messages[0].Role != ai.RoleAssistant || messages[0].Content != want {
		t.Fatalf("unexpected greeting: %+v", messages[0])
	}
	if s.State() != StateIdle || s.Model() != testModel || s.CandidateID() != "cand-1" || s.ID() != "sess-1" {
		t.Fatalf("unexpected session accessors: state=%s model=%q candidate=%q id=%q", s.State(), s.Model(), s.CandidateID(), s.ID())
	}
}

func TestStartUsesPersona(t *testing.T) {
	s := NewSession(SessionConfig{Persona: Persona{Company: "Acme", Interviewer: "Max"}})
	messages, err := s.Start(jane, testModel)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !strings.Contains(messages[0].Content, "interview with Acme. I am Max,") {
		t.Fatalf("persona not applied: %q", messages[0].Content)
	}
	if s.ID() == "" {
		t.Fatal("expected generated session id")
	}
}

func TestStartDiscardsPreviousTranscript(t *testing.T) {
	provider := &stubProvider{steps: []step{{text: "Next question?"}}}
	s := newStartedSession(t, provider)

	if _, err := s.Send(context.Background(), "Yes", "", nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	messages, err := s.Start(jane, testModel)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if len(messages) != 1 || messages[0].Role != ai.RoleAssistant {
		t.Fatalf("expected only the greeting after restart, got %+v", messages)
	}
}

func TestSendStreamsFragmentsInOrder(t *testing.T) {
	provider := &stubProvider{steps: []step{{text: "Hel"}, {text: ""}, {text: "lo"}}}
	s := newStartedSession(t, provider)

	var got []string
	messages, err := s.Send(context.Background(), "  I am ready  ", testModel, func(fragment string) {
		got = append(got, fragment)
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(got) != 2 || got[0] != "Hel" || got[1] != "lo" {
		t.Fatalf("expected onChunk to see [Hel lo], got %q", got)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}
	if messages[1].Role != ai.RoleUser || messages[1].Content != "I am ready" {
		t.Fatalf("unexpected user message: %+v", messages[1])
	}
	if messages[2].Role != ai.RoleAssistant || messages[2].Content != "Hello" {
		t.Fatalf("unexpected assistant message: %+v", messages[2])
	}
	if s.State() != StateIdle {
		t.Fatalf("expected idle state, got %s", s.State())
	}

	seen := make(map[string]bool)
	for i, m := range messages {
		if seen[m.ID] || m.ID == "" {
			t.Fatalf("message ids must be unique and non-empty: %+v", messages)
		}
		seen[m.ID] = true
		if i > 0 && m.Timestamp <= messages[i-1].Timestamp {
			t.Fatalf("timestamps must strictly increase: %+v", messages)
		}
	}

	req := provider.requests[0]
	if req.Model != testModel || len(req.Messages) != 2 || !strings.Contains(req.System, "Beauty Host") {
		t.Fatalf("unexpected provider request: %+v", req)
	}
}

func TestSendPrefersFinalText(t *testing.T) {
	provider := &stubProvider{steps: []step{{text: "Hel"}, {text: "lo"}, {text: "Hello there", final: true}}}
	s := newStartedSession(t, provider)

	var fragments []string
	messages, err := s.Send(context.Background(), "Hi", "", func(f string) { fragments = append(fragments, f) })
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fragments) != 2 {
		t.Fatalf("final text must not be forwarded as a fragment, got %q", fragments)
	}
	if got := messages[len(messages)-1].Content; got != "Hello there" {
		t.Fatalf("expected finalized text, got %q", got)
	}
}

func TestSendFailureMidStream(t *testing.T) {
	provider := &stubProvider{steps: []step{{text: "Hel"}, {err: errors.New("connection reset")}}}
	s := newStartedSession(t, provider)

	var fragments []string
	_, err := s.Send(context.Background(), "Ready", "", func(f string) { fragments = append(fragments, f) })
	if !errors.Is(err, apperr.ErrCompletion) {
		t.Fatalf("expected completion error, got %v", err)
	}
	if len(fragments) != 1 {
		t.Fatalf("expected the partial fragment to be delivered, got %q", fragments)
	}

	messages := s.Messages()
	if len(messages) != 2 || messages[1].Role != ai.RoleUser || messages[1].Content != "Ready" {
		t.Fatalf("expected greeting and kept user message only, got %+v", messages)
	}
	if s.State() != StateIdle {
		t.Fatalf("expected idle after failure, got %s", s.State())
	}

	provider.steps = []step{{text: "Welcome back"}}
	messages, err = s.Send(context.Background(), "Ready", "", nil)
	if err != nil {
		t.Fatalf("retry send: %v", err)
	}
	if len(messages) != 4 || messages[3].Content != "Welcome back" {
		t.Fatalf("unexpected transcript after retry: %+v", messages)
	}
}

func TestSendEmptyReplyFails(t *testing.T) {
	s := newStartedSession(t, &stubProvider{steps: []step{{text: ""}}})

	if _, err := s.Send(context.Background(), "Hello?", "", nil); !errors.Is(err, apperr.ErrCompletion) {
		t.Fatalf("expected completion error, got %v", err)
	}
	if len(s.Messages()) != 2 {
		t.Fatalf("expected no assistant message, got %+v", s.Messages())
	}
}

func TestSendValidation(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		model string
		want  error
	}{
		{name: "empty text", text: "   ", want: apperr.ErrValidation},
		{name: "other model", text: "hi", model: "openai/gpt-4o", want: apperr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStartedSession(t, &stubProvider{steps: []step{{text: "ok"}}})

			_, err := s.Send(context.Background(), tt.text, tt.model, nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if len(s.Messages()) != 1 {
				t.Fatalf("transcript must not change: %+v", s.Messages())
			}
		})
	}

	notStarted := NewSession(SessionConfig{Provider: &stubProvider{}})
	if _, err := notStarted.Send(context.Background(), "hi", "", nil); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error before start, got %v", err)
	}
}

func TestSecondSendWhileStreamingIsRejected(t *testing.T) {
	provider := &gatedProvider{release: make(chan struct{})}
	s := newStartedSession(t, provider)

	firstFragment := make(chan struct{})
	type result struct {
		messages []ChatMessage
		err      error
	}
	done := make(chan result, 1)

	go func() {
		var once bool
		messages, err := s.Send(context.Background(), "Ready", "", func(string) {
			if !once {
				once = true
				close(firstFragment)
			}
		})
		done <- result{messages, err}
	}()

	select {
	case <-firstFragment:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the first fragment")
	}

	if s.State() != StateStreaming {
		t.Fatalf("expected streaming state, got %s", s.State())
	}

	before := s.Messages()
	if len(before) != 2 {
		t.Fatalf("mid-stream snapshot must hold only committed messages, got %+v", before)
	}

	if _, err := s.Send(context.Background(), "Again", "", nil); !errors.Is(err, apperr.ErrBusy) {
		t.Fatalf("expected busy error, got %v", err)
	}
	if _, err := s.Start(jane, testModel); !errors.Is(err, apperr.ErrBusy) {
		t.Fatalf("expected busy error on restart, got %v", err)
	}
	if after := s.Messages(); len(after) != len(before) {
		t.Fatalf("rejected send must not mutate the transcript: %+v", after)
	}

	close(provider.release)

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("first send failed: %v", res.err)
		}
		if got := res.messages[len(res.messages)-1].Content; got != "Hello" {
			t.Fatalf("expected Hello, got %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the first send")
	}
}

func TestSendAwaitingReplyUntilFirstFragment(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	provider := ai.ProviderFunc(func(context.Context, ai.Request) iter.Seq2[ai.Chunk, error] {
		return func(yield func(ai.Chunk, error) bool) {
			close(entered)
			<-release
			yield(ai.Chunk{Text: "First question?"}, nil)
		}
	})
	s := newStartedSession(t, provider)

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "Ready", "", nil)
		done <- err
	}()

	<-entered
	if s.State() != StateAwaitingReply {
		t.Fatalf("expected awaiting reply, got %s", s.State())
	}
	close(release)

	if err := <-done; err != nil {
		t.Fatalf("send: %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("expected idle, got %s", s.State())
	}
}

func TestSendCancelledContext(t *testing.T) {
	provider := &gatedProvider{release: make(chan struct{})}
	s := newStartedSession(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.Send(ctx, "Ready", "", func(string) { cancel() })

	if !errors.Is(err, apperr.ErrCompletion) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancelled completion error, got %v", err)
	}
	if s.State() != StateIdle || len(s.Messages()) != 2 {
		t.Fatalf("expected idle with the user message kept, got %s %+v", s.State(), s.Messages())
	}
}

func TestSendWithoutProvider(t *testing.T) {
	s := newStartedSession(t, nil)
	if _, err := s.Send(context.Background(), "hi", "", nil); !errors.Is(err, apperr.ErrCompletion) {
		t.Fatalf("expected completion error, got %v", err)
	}
}
