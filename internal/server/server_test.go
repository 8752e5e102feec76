package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/aura-hire/internal/ai"
	"github.com/spigell/aura-hire/internal/apperr"
	"github.com/spigell/aura-hire/internal/candidate"
	"github.com/spigell/aura-hire/internal/interview"
	"github.com/spigell/aura-hire/internal/registry"
	"github.com/spigell/aura-hire/internal/store"
)

const testModel = "scripted/default"

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type event struct {
	name string
	data string
}

type fixture struct {
	srv      *httptest.Server
	registry *registry.Registry
}

func fragments(parts ...string) ai.Provider {
	return ai.ProviderFunc(func(context.Context, ai.Request) iter.Seq2[ai.Chunk, error] {
		return func(yield func(ai.Chunk, error) bool) {
			for _, p := range parts {
				if p == "!" {
					yield(ai.Chunk{}, errors.New("upstream dropped"))
					return
				}
				if !yield(ai.Chunk{Text: p}, nil) {
					return
				}
			}
		}
	})
}

func newFixture(t *testing.T, provider ai.Provider) *fixture {
	t.Helper()

	reg := registry.New(store.NewMemory(), zap.NewNop())
	manager := interview.NewManager(reg, provider, interview.ManagerConfig{DefaultModel: testModel}, zap.NewNop())

	srv := httptest.NewServer(New(reg, manager, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, registry: reg}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, response) {
	t.Helper()

	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, out
}

func (f *fixture) stream(t *testing.T, path, body string) (int, string, []event) {
	t.Helper()

	resp, err := f.srv.Client().Post(f.srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	defer resp.Body.Close()

	var events []event
	var current event
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		case line == "" && current.name != "":
			events = append(events, current)
			current = event{}
		}
	}
	return resp.StatusCode, resp.Header.Get("Content-Type"), events
}

func decodeData[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode data %s: %v", raw, err)
	}
	return v
}

func TestCandidateEndpoints(t *testing.T) {
	f := newFixture(t, fragments("ok"))

	status, resp := f.do(t, http.MethodPost, "/api/candidates", `{"name":"Jane Doe","position":"Beauty Host"}`)
	if status != http.StatusCreated || !resp.Success {
		t.Fatalf("create: status %d resp %+v", status, resp)
	}
	created := decodeData[candidate.Candidate](t, resp.Data)
	if created.Status != candidate.StatusPendingInterview || created.AvatarURL == "" {
		t.Fatalf("unexpected created candidate: %+v", created)
	}

	status, resp = f.do(t, http.MethodGet, "/api/candidates/"+created.ID, "")
	if status != http.StatusOK || decodeData[candidate.Candidate](t, resp.Data).Name != "Jane Doe" {
		t.Fatalf("get: status %d resp %+v", status, resp)
	}

	status, resp = f.do(t, http.MethodPut, "/api/candidates/"+created.ID+"/status", `{"status":"Interviewing"}`)
	if status != http.StatusOK {
		t.Fatalf("update status: status %d resp %+v", status, resp)
	}
	updated := decodeData[candidate.Candidate](t, resp.Data)
	if updated.Status != candidate.StatusInterviewing || updated.LastActive <= updated.CreatedAt {
		t.Fatalf("unexpected updated candidate: %+v", updated)
	}

	if _, err := f.registry.Add(context.Background(), "John Roe", "Advisor"); err != nil {
		t.Fatalf("add: %v", err)
	}

	status, resp = f.do(t, http.MethodGet, "/api/candidates", "")
	list := decodeData[[]candidate.Candidate](t, resp.Data)
	if status != http.StatusOK || len(list) != 2 || list[0].Name != "John Roe" {
		t.Fatalf("list: status %d list %+v", status, list)
	}

	status, _ = f.do(t, http.MethodDelete, "/api/candidates/"+created.ID, "")
	if status != http.StatusOK {
		t.Fatalf("remove: status %d", status)
	}

	status, resp = f.do(t, http.MethodDelete, "/api/candidates", "")
	if status != http.StatusOK || decodeData[map[string]int](t, resp.Data)["removed"] != 1 {
		t.Fatalf("clear: status %d resp %+v", status, resp)
	}
}

func TestCandidateEndpointErrors(t *testing.T) {
	f := newFixture(t, fragments("ok"))

	c, err := f.registry.Add(context.Background(), "Jane Doe", "Beauty Host")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{name: "create without name", method: http.MethodPost, path: "/api/candidates", body: `{"position":"Host"}`, want: http.StatusBadRequest},
		{name: "create with bad json", method: http.MethodPost, path: "/api/candidates", body: `{`, want: http.StatusBadRequest},
		{name: "create without body", method: http.MethodPost, path: "/api/candidates", want: http.StatusBadRequest},
		{name: "get unknown", method: http.MethodGet, path: "/api/candidates/missing", want: http.StatusNotFound},
		{name: "remove unknown", method: http.MethodDelete, path: "/api/candidates/missing", want: http.StatusNotFound},
		{name: "bad status", method: http.MethodPut, path: "/api/candidates/" + c.ID + "/status", body: `{"status":"Rejected"}`, want: http.StatusBadRequest},
		{name: "status of unknown", method: http.MethodPut, path: "/api/candidates/missing/status", body: `{"status":"Hired"}`, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := f.do(t, tt.method, tt.path, tt.body)
			if status != tt.want || resp.Success || resp.Error == "" {
				t.Fatalf("expected %d with error, got %d %+v", tt.want, status, resp)
			}
		})
	}
}

func TestInterviewStreaming(t *testing.T) {
	f := newFixture(t, fragments("Hel", "lo"))

	c, err := f.registry.Add(context.Background(), "Jane Doe", "Beauty Host")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	status, resp := f.do(t, http.MethodPost, "/api/interviews", fmt.Sprintf(`{"candidateId":%q}`, c.ID))
	if status != http.StatusCreated {
		t.Fatalf("start: status %d resp %+v", status, resp)
	}
	started := decodeData[interviewResponse](t, resp.Data)
	if started.SessionID == "" || started.Model != testModel || len(started.Messages) != 1 {
		t.Fatalf("unexpected start payload: %+v", started)
	}

	path := "/api/interviews/" + started.SessionID + "/messages"
	status, contentType, events := f.stream(t, path, `{"message":"I am ready"}`)
	if status != http.StatusOK || !strings.HasPrefix(contentType, "text/event-stream") {
		t.Fatalf("unexpected stream response: %d %q", status, contentType)
	}

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %+v", events)
	}
	if events[0].name != "chunk" || events[0].data != `{"text":"Hel"}` || events[1].data != `{"text":"lo"}` {
		t.Fatalf("unexpected chunk events: %+v", events[:2])
	}
	if events[2].name != "done" {
		t.Fatalf("expected done event, got %+v", events[2])
	}

	var done struct {
		Messages []interview.ChatMessage `json:"messages"`
	}
	if err := json.Unmarshal([]byte(events[2].data), &done); err != nil {
		t.Fatalf("decode done: %v", err)
	}
	if len(done.Messages) != 3 || done.Messages[2].Content != "Hello" {
		t.Fatalf("unexpected transcript: %+v", done.Messages)
	}

	status, resp = f.do(t, http.MethodGet, path, "")
	if status != http.StatusOK || len(decodeData[[]interview.ChatMessage](t, resp.Data)) != 3 {
		t.Fatalf("messages: status %d resp %+v", status, resp)
	}

	status, resp = f.do(t, http.MethodPost, "/api/interviews/"+started.SessionID+"/restart", "")
	if status != http.StatusOK || len(decodeData[[]interview.ChatMessage](t, resp.Data)) != 1 {
		t.Fatalf("restart: status %d resp %+v", status, resp)
	}

	status, _ = f.do(t, http.MethodDelete, "/api/interviews/"+started.SessionID, "")
	if status != http.StatusOK {
		t.Fatalf("end: status %d", status)
	}
	status, _ = f.do(t, http.MethodGet, path, "")
	if status != http.StatusNotFound {
		t.Fatalf("expected ended session to be gone, got %d", status)
	}
}

func TestInterviewStreamErrors(t *testing.T) {
	t.Run("failure after first fragment", func(t *testing.T) {
		f := newFixture(t, fragments("Hel", "!"))
		c, _ := f.registry.Add(context.Background(), "Jane Doe", "Beauty Host")

		_, resp := f.do(t, http.MethodPost, "/api/interviews", fmt.Sprintf(`{"candidateId":%q}`, c.ID))
		session := decodeData[interviewResponse](t, resp.Data)

		status, _, events := f.stream(t, "/api/interviews/"+session.SessionID+"/messages", `{"message":"hi"}`)
		if status != http.StatusOK || len(events) != 2 || events[1].name != "error" {
			t.Fatalf("expected chunk then error event, got %d %+v", status, events)
		}
	})

	t.Run("failure before first fragment", func(t *testing.T) {
		f := newFixture(t, fragments("!"))
		c, _ := f.registry.Add(context.Background(), "Jane Doe", "Beauty Host")

		_, resp := f.do(t, http.MethodPost, "/api/interviews", fmt.Sprintf(`{"candidateId":%q}`, c.ID))
		session := decodeData[interviewResponse](t, resp.Data)

		status, resp := f.do(t, http.MethodPost, "/api/interviews/"+session.SessionID+"/messages", `{"message":"hi"}`)
		if status != http.StatusBadGateway || resp.Success {
			t.Fatalf("expected 502, got %d %+v", status, resp)
		}
	})

	t.Run("validation and lookup", func(t *testing.T) {
		f := newFixture(t, fragments("ok"))
		c, _ := f.registry.Add(context.Background(), "Jane Doe", "Beauty Host")

		if status, _ := f.do(t, http.MethodPost, "/api/interviews", `{"candidateId":"missing"}`); status != http.StatusNotFound {
			t.Fatalf("expected 404 for unknown candidate, got %d", status)
		}
		if status, _ := f.do(t, http.MethodPost, "/api/interviews/missing/messages", `{"message":"hi"}`); status != http.StatusNotFound {
			t.Fatalf("expected 404 for unknown session, got %d", status)
		}

		_, resp := f.do(t, http.MethodPost, "/api/interviews", fmt.Sprintf(`{"candidateId":%q}`, c.ID))
		session := decodeData[interviewResponse](t, resp.Data)

		if status, _ := f.do(t, http.MethodPost, "/api/interviews/"+session.SessionID+"/messages", `{"message":"  "}`); status != http.StatusBadRequest {
			t.Fatalf("expected 400 for empty message, got %d", status)
		}
		if status, _ := f.do(t, http.MethodDelete, "/api/interviews/missing", ""); status != http.StatusNotFound {
			t.Fatalf("expected 404 for unknown session end, got %d", status)
		}
	})
}

type brokenCandidates struct{ Candidates }

func (brokenCandidates) List(context.Context) ([]candidate.Candidate, error) {
	return nil, fmt.Errorf("load candidates: %w: disk gone", apperr.ErrStorage)
}

func TestStorageFailureHidesDetails(t *testing.T) {
	srv := httptest.NewServer(New(brokenCandidates{}, nil, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL + "/api/candidates")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError || out.Error != "internal error" {
		t.Fatalf("unexpected response: %d %+v", resp.StatusCode, out)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: apperr.ErrValidation, want: http.StatusBadRequest},
		{err: apperr.ErrNotFound, want: http.StatusNotFound},
		{err: apperr.ErrBusy, want: http.StatusConflict},
		{err: apperr.ErrCompletion, want: http.StatusBadGateway},
		{err: apperr.ErrStorage, want: http.StatusInternalServerError},
		{err: errors.New("something else"), want: http.StatusInternalServerError},
		{err: fmt.Errorf("wrapped: %w", apperr.ErrBusy), want: http.StatusConflict},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, fragments("ok"))

	status, resp := f.do(t, http.MethodGet, "/health", "")
	if status != http.StatusOK || !resp.Success {
		t.Fatalf("unexpected health response: %d %+v", status, resp)
	}
}
