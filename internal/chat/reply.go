package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/leadflow/internal/metrics"
)

// RepetitionWindow is how many prior replies a new reply is compared against.
const RepetitionWindow = 3

const regenerationInstruction = "Your previous answer repeated something you already told this customer. " +
	"Write a materially different reply: new wording, and move the conversation forward."

// Sampling holds the diversity parameters of one generation attempt.
type Sampling struct {
	Temperature      float32
	PresencePenalty  float32
	FrequencyPenalty float32
}

// GeneratorConfig fixes the model and sampling used for replies.
type GeneratorConfig struct {
	Model     string
	MaxTokens int
	Initial   Sampling
	Regen     Sampling // used for the single regeneration
}

// Reply is a generated answer.
type Reply struct {
	Text        string
	Regenerated bool
}

// Generator produces replies and suppresses verbatim repeats.
type Generator struct {
	cfg GeneratorConfig
	log *slog.Logger
}

func NewGenerator(log *slog.Logger, cfg GeneratorConfig) *Generator {
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		cfg: cfg,
		log: log.With(slog.String("component", "reply_generator")),
	}
}

// Generate asks the model for a reply to history, whose last entry is the
// current user message. If the reply equals one of recentReplies it is
// regenerated exactly once and the second answer is used as is.
func (g *Generator) Generate(ctx context.Context, provider Provider, system string, history []Message, recentReplies []string) (Reply, error) {
	if len(history) == 0 {
		return Reply{}, errors.New("history must contain the current message")
	}
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: RoleSystem, Content: system})
	messages = append(messages, history...)

	text, err := g.complete(ctx, provider, messages, g.cfg.Initial, "reply")
	if err != nil {
		return Reply{}, err
	}
	if !IsRepeat(text, recentReplies) {
		return Reply{Text: text}, nil
	}

	g.log.Info("reply repeats a recent answer, regenerating")
	metrics.Regenerations.Inc()
	messages = append(messages, Message{Role: RoleSystem, Content: regenerationInstruction})
	text, err = g.complete(ctx, provider, messages, g.cfg.Regen, "regenerate")
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: text, Regenerated: true}, nil
}

func (g *Generator) complete(ctx context.Context, provider Provider, messages []Message, sampling Sampling, operation string) (string, error) {
	req := Request{
		Model:            g.cfg.Model,
		Messages:         messages,
		Temperature:      float32Ptr(sampling.Temperature),
		PresencePenalty:  float32Ptr(sampling.PresencePenalty),
		FrequencyPenalty: float32Ptr(sampling.FrequencyPenalty),
	}
	if g.cfg.MaxTokens > 0 {
		req.MaxTokens = intPtr(g.cfg.MaxTokens)
	}

	start := time.Now()
	result, err := provider.Chat(ctx, req)
	if err != nil {
		metrics.LLMLatency.WithLabelValues(operation, "error").Observe(time.Since(start).Seconds())
		return "", fmt.Errorf("%s: %w", operation, err)
	}
	metrics.LLMLatency.WithLabelValues(operation, "ok").Observe(time.Since(start).Seconds())
	return strings.TrimSpace(result.Message.Content), nil
}

// IsRepeat reports whether reply matches any of the last RepetitionWindow
// entries of recent (newest first), ignoring case and surrounding whitespace.
func IsRepeat(reply string, recent []string) bool {
	if len(recent) > RepetitionWindow {
		recent = recent[:RepetitionWindow]
	}
	candidate := strings.TrimSpace(reply)
	for _, prior := range recent {
		if strings.EqualFold(candidate, strings.TrimSpace(prior)) {
			return true
		}
	}
	return false
}
