package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/aura-hire/internal/ai"
	"github.com/spigell/aura-hire/internal/logger"
	"github.com/spigell/aura-hire/internal/utils"
)

const (
	defaultModel        = "gemini-2.5-flash"
	defaultMaxLogLength = 200
	retryBaseDelay      = time.Second
	defaultQuotaDelay   = 5 * time.Second
	maxQuotaDelay       = 30 * time.Second
)

var (
	waitFor = utils.WaitFor

	retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) ([0-9]+(?:\.[0-9]+)?)\s*(s|sec|secs|second|seconds)?\b`)
)

type streamer interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// Provider streams interview replies from the Gemini API.
type Provider struct {
	models     streamer
	model      string
	maxRetries int
	maxLogLen  int
	logger     *zap.Logger
}

// Config controls how the provider talks to Gemini.
type Config struct {
	APIKey       string
	Model        string
	MaxRetries   int
	MaxLogLength int
}

// New creates a Provider configured for the Gemini API backend.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Provider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newProvider(client.Models, cfg, log), nil
}

func newProvider(models streamer, cfg Config, log *zap.Logger) *Provider {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Provider{
		models:     models,
		model:      model,
		maxRetries: maxRetries,
		maxLogLen:  maxLogLen,
		logger:     logger.WithFields(log, logger.ProviderFields("gemini", model)...),
	}
}

// Model returns the model used when a request does not name one.
func (p *Provider) Model() string {
	if p == nil {
		return ""
	}
	return p.model
}

// Complete streams the reply. Temporary API errors are retried only while no
// fragment has been yielded yet.
func (p *Provider) Complete(ctx context.Context, req ai.Request) iter.Seq2[ai.Chunk, error] {
	return func(yield func(ai.Chunk, error) bool) {
		model := strings.TrimSpace(req.Model)
		if model == "" {
			model = p.model
		}

		contents := toContents(req.Messages)
		if len(contents) == 0 {
			yield(ai.Chunk{}, errors.New("gemini request has no messages"))
			return
		}

		var config *genai.GenerateContentConfig
		if system := strings.TrimSpace(req.System); system != "" {
			config = &genai.GenerateContentConfig{
				SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
			}
		}

		last := req.Messages[len(req.Messages)-1].Content
		p.logger.Debug("gemini stream request",
			zap.String("request_model", model),
			zap.Int("history_length", len(contents)),
			zap.Int("message_length", utf8.RuneCountInString(last)),
			zap.String("message_preview", utils.TruncateForLog(last, p.maxLogLen)),
		)

		for attempt := 1; ; attempt++ {
			started, received, err := p.stream(ctx, model, contents, config, yield)
			if err == nil {
				p.logger.Debug("gemini stream completed",
					zap.Int("attempt", attempt),
					zap.Int("response_length", received),
				)
				return
			}
			if errors.Is(err, errStopped) {
				return
			}

			if started || attempt >= p.maxRetries {
				yield(ai.Chunk{}, fmt.Errorf("gemini stream: %w", err))
				return
			}

			delay, retry := retryDelay(err, attempt)
			if !retry {
				yield(ai.Chunk{}, fmt.Errorf("gemini stream: %w", err))
				return
			}

			p.logger.Warn("gemini stream failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)

			if err := waitFor(ctx, delay); err != nil {
				yield(ai.Chunk{}, err)
				return
			}
		}
	}
}

var errStopped = errors.New("consumer stopped reading")

func (p *Provider) stream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig, yield func(ai.Chunk, error) bool) (started bool, received int, err error) {
	for resp, err := range p.models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			return started, received, err
		}

		text := responseText(resp)
		if text == "" {
			continue
		}

		started = true
		received += utf8.RuneCountInString(text)
		if !yield(ai.Chunk{Text: text}, nil) {
			return started, received, errStopped
		}
	}

	return started, received, nil
}

func toContents(messages []ai.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		if m.Content == "" {
			continue
		}

		var role genai.Role = genai.RoleUser
		if m.Role == ai.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}

	var builder strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		builder.WriteString(part.Text)
	}
	return builder.String()
}

// retryDelay decides whether err is worth another attempt and how long to wait.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		delay, ok := parseRetryAfter(apiErr.Message)
		if !ok {
			return defaultQuotaDelay, true
		}
		if delay > maxQuotaDelay {
			return 0, false
		}
		return delay, true
	case apiErr.Code >= http.StatusInternalServerError:
		return retryBaseDelay * time.Duration(attempt), true
	default:
		return 0, false
	}
}

func parseRetryAfter(message string) (time.Duration, bool) {
	match := retryAfterPattern.FindStringSubmatch(message)
	if match == nil {
		return 0, false
	}

	seconds, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}
