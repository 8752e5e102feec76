// Package openai streams chat completions from any OpenAI-compatible endpoint.
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/aura-hire/internal/ai"
	"github.com/spigell/aura-hire/internal/logger"
	"github.com/spigell/aura-hire/internal/utils"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o"
	defaultTimeout = 5 * time.Minute

	dataPrefix = "data:"
	doneMarker = "[DONE]"
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// HTTPClient replaces the default client, mostly for tests.
	HTTPClient *http.Client
}

type Provider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

func New(cfg Config, log *zap.Logger) (*Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &Provider{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  client,
		logger:  logger.WithFields(log, logger.ProviderFields("openai", model)...),
	}, nil
}

func (p *Provider) Model() string { return p.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type errorResponse struct {
	Error *apiError `json:"error"`
}

// Complete posts the conversation with stream enabled and yields every
// content delta from the event stream.
func (p *Provider) Complete(ctx context.Context, req ai.Request) iter.Seq2[ai.Chunk, error] {
	return func(yield func(ai.Chunk, error) bool) {
		model := strings.TrimSpace(req.Model)
		if model == "" {
			model = p.model
		}

		body, err := json.Marshal(chatRequest{
			Model:    model,
			Messages: toMessages(req),
			Stream:   true,
		})
		if err != nil {
			yield(ai.Chunk{}, fmt.Errorf("marshal chat request: %w", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			yield(ai.Chunk{}, fmt.Errorf("create chat request: %w", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

		p.logger.Debug("openai stream request",
			zap.String("request_model", model),
			zap.Int("history_length", len(req.Messages)),
		)

		resp, err := p.client.Do(httpReq)
		if err != nil {
			yield(ai.Chunk{}, fmt.Errorf("send chat request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield(ai.Chunk{}, statusError(resp))
			return
		}

		received := 0
		for text, err := range readEvents(resp.Body) {
			if err != nil {
				yield(ai.Chunk{}, err)
				return
			}
			received += len(text)
			if !yield(ai.Chunk{Text: text}, nil) {
				return
			}
		}

		p.logger.Debug("openai stream completed", zap.Int("response_length", received))
	}
}

func toMessages(req ai.Request) []chatMessage {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	return messages
}

// readEvents parses a chat completion event stream into content deltas. The
// stream must end with the [DONE] marker; anything else is an interrupted reply.
func readEvents(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, dataPrefix) {
				continue
			}

			payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
			if payload == doneMarker {
				return
			}

			var chunk chatChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				yield("", fmt.Errorf("decode stream event: %w", err))
				return
			}
			if chunk.Error != nil {
				yield("", fmt.Errorf("openai stream error: %s", chunk.Error.Message))
				return
			}

			for _, choice := range chunk.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !yield(choice.Delta.Content, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("read stream: %w", err))
			return
		}
		yield("", io.ErrUnexpectedEOF)
	}
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var parsed errorResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error != nil && parsed.Error.Message != "" {
		return fmt.Errorf("openai api status %d: %s", resp.StatusCode, parsed.Error.Message)
	}
	return fmt.Errorf("openai api status %d: %s", resp.StatusCode, utils.TruncateForLog(string(data), 200))
}
