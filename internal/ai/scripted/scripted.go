// Package scripted implements an offline provider that walks through a fixed
// list of interview questions. It needs no network access or API key.
package scripted

import (
	"context"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/aura-hire/internal/ai"
	"github.com/spigell/aura-hire/internal/logger"
	"github.com/spigell/aura-hire/internal/utils"
)

const (
	DefaultModel = "default"

	closingRemark = "Thank you, that concludes our interview. We will be in touch about the next steps."
)

var defaultQuestions = []string{
	"Great, let's begin. Could you tell me a little about yourself and your background?",
	"What attracted you to this role and to our company?",
	"Describe a time you turned a difficult customer interaction into a positive experience.",
	"How do you keep up with new products and trends in your field?",
	"Tell me about a goal you set for yourself and how you reached it.",
	"Do you have any questions for us?",
}

var waitFor = utils.WaitFor

type Config struct {
	Questions []string
	// Delay is paused before every word after the first.
	Delay time.Duration
}

// Provider answers every turn with the next question, streamed word by word.
// The question is picked by counting assistant turns after the greeting.
type Provider struct {
	questions []string
	delay     time.Duration
	logger    *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Provider {
	questions := make([]string, 0, len(cfg.Questions))
	for _, q := range cfg.Questions {
		if q = strings.TrimSpace(q); q != "" {
			questions = append(questions, q)
		}
	}
	if len(questions) == 0 {
		questions = defaultQuestions
	}

	return &Provider{
		questions: questions,
		delay:     cfg.Delay,
		logger:    logger.WithFields(log, logger.ProviderFields("scripted", DefaultModel)...),
	}
}

func (p *Provider) Complete(ctx context.Context, req ai.Request) iter.Seq2[ai.Chunk, error] {
	return func(yield func(ai.Chunk, error) bool) {
		reply := p.next(req.Messages)
		p.logger.Debug("scripted reply", zap.String("reply", utils.TruncateForLog(reply, 80)))

		words := strings.Fields(reply)
		for i, word := range words {
			if i > 0 {
				if err := waitFor(ctx, p.delay); err != nil {
					yield(ai.Chunk{}, err)
					return
				}
				word = " " + word
			} else if err := ctx.Err(); err != nil {
				yield(ai.Chunk{}, err)
				return
			}

			if !yield(ai.Chunk{Text: word}, nil) {
				return
			}
		}

		yield(ai.Chunk{Text: reply, Final: true}, nil)
	}
}

func (p *Provider) next(messages []ai.Message) string {
	asked := -1 // the greeting is not a question
	for _, m := range messages {
		if m.Role == ai.RoleAssistant {
			asked++
		}
	}
	if asked < 0 {
		asked = 0
	}

	if asked >= len(p.questions) {
		return closingRemark
	}
	return p.questions[asked]
}
