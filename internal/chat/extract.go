package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/memohai/leadflow/internal/metrics"
)

// NotFoundSentinel is returned by the extractor when the attribute is absent.
const NotFoundSentinel = "no"

// ErrMalformedOutput reports model output that is not the expected JSON object.
var ErrMalformedOutput = errors.New("malformed extraction output")

const nameExtractionPrompt = `You are an analyzer that returns JSON only.
Find a person's first name or full name in the customer's text.
If there is one, return only that name in the "name" field.
If there is none, the "name" field must be null.
Do not write anything else.`

const phoneExtractionPrompt = `You are an analyzer that returns JSON only.
Find a phone number in the customer's text.
If there is one, return only the number in the "phone" field.
If there is none, the "phone" field must be null.
Do not write anything else.`

type attribute struct {
	field  string
	schema string
	prompt string
}

var (
	nameAttribute = attribute{
		field:  "name",
		schema: "name_extractor",
		prompt: nameExtractionPrompt,
	}
	phoneAttribute = attribute{
		field:  "phone",
		schema: "phone_extractor",
		prompt: phoneExtractionPrompt,
	}
)

// Extractor pulls single personal attributes out of free text.
type Extractor struct {
	model string
	log   *slog.Logger
}

func NewExtractor(log *slog.Logger, model string) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{
		model: model,
		log:   log.With(slog.String("component", "extractor")),
	}
}

// ExtractName returns the name found in text or NotFoundSentinel.
func (e *Extractor) ExtractName(ctx context.Context, provider Provider, text string) (string, error) {
	return e.extract(ctx, provider, nameAttribute, text)
}

// ExtractPhone returns the phone number found in text or NotFoundSentinel.
func (e *Extractor) ExtractPhone(ctx context.Context, provider Provider, text string) (string, error) {
	return e.extract(ctx, provider, phoneAttribute, text)
}

func (e *Extractor) extract(ctx context.Context, provider Provider, attr attribute, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return NotFoundSentinel, nil
	}
	req := Request{
		Model: e.model,
		Messages: []Message{
			{Role: RoleSystem, Content: attr.prompt},
			{Role: RoleUser, Content: text},
		},
		Temperature: float32Ptr(0),
		ResponseFormat: &ResponseFormat{
			Type:   "json_schema",
			Name:   attr.schema,
			Schema: nullableStringSchema(attr.field),
		},
	}

	start := time.Now()
	result, err := provider.Chat(ctx, req)
	if err != nil {
		metrics.LLMLatency.WithLabelValues("extract_"+attr.field, "error").Observe(time.Since(start).Seconds())
		return "", fmt.Errorf("extract %s: %w", attr.field, err)
	}
	metrics.LLMLatency.WithLabelValues("extract_"+attr.field, "ok").Observe(time.Since(start).Seconds())

	value, err := parseAttribute(result.Message.Content, attr.field)
	if err != nil {
		e.log.Warn("extraction output rejected",
			slog.String("attribute", attr.field),
			slog.Any("error", err),
		)
		return "", err
	}
	if value == "" {
		return NotFoundSentinel, nil
	}
	return value, nil
}

func parseAttribute(content, field string) (string, error) {
	cleaned := stripCodeFence(content)
	var parsed map[string]*string
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	value, ok := parsed[field]
	if !ok {
		return "", fmt.Errorf("%w: missing %q", ErrMalformedOutput, field)
	}
	if value == nil {
		return "", nil
	}
	v := strings.TrimSpace(*value)
	if strings.EqualFold(v, NotFoundSentinel) {
		return "", nil
	}
	return v, nil
}

// stripCodeFence removes a surrounding ``` block some models add to JSON output.
func stripCodeFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func nullableStringSchema(field string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"type":"object","properties":{%q:{"type":["string","null"]}},"required":[%q],"additionalProperties":false}`,
		field, field,
	))
}
