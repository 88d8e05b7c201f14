// Package fallback resolves questions the rule parser cannot read by
// asking an OpenAI-compatible chat model for structured query specs.
package fallback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/sashabaranov/go-openai"

	"EMSpark/internal/domain/models"
	xhttp "EMSpark/pkg/http"
	"EMSpark/pkg/logger"
)

// ErrEmptyResponse is returned when the model answers with no choices.
var ErrEmptyResponse = errors.New("fallback: empty response from model")

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config selects the model endpoint.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Retries     int
	Temperature float32
}

// LLMClassifier turns free text into query specs through a chat model.
type LLMClassifier struct {
	client      chatCompleter
	model       string
	timeout     time.Duration
	temperature float32
	validate    *validator.Validate
	log         *logger.Logger
}

func NewLLMClassifier(cfg Config, log *logger.Logger) *LLMClassifier {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout), xhttp.WithRetry(cfg.Retries, 500*time.Millisecond))
	return newClassifier(openai.NewClientWithConfig(clientConfig), cfg, log)
}

func newClassifier(client chatCompleter, cfg Config, log *logger.Logger) *LLMClassifier {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &LLMClassifier{
		client:      client,
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
		validate:    validator.New(),
		log:         log,
	}
}

const systemPrompt = `You are a query parser for an Indian electricity market analysis system.
Today is %s (%s).

Parse the user's question and extract one object per requested period:
- market: "DAM", "GDAM" or "RTM" (default "DAM")
- start_date, end_date: YYYY-MM-DD, inclusive
- granularity: "hour" or "quarter" (default "hour")
- hours: integers 1-24 when granularity is hour; omit for the whole day
- slots: integers 1-96 when granularity is quarter; omit for the whole day
- stat: "twap", "vwap", "list" or "daily_avg" (default "twap")

Comparisons produce several objects. Answer with a JSON object of the form
{"queries": [ ... ]} and nothing else.`

// Classify never returns a partially valid item: items that fail
// validation are dropped and logged.
func (c *LLMClassifier) Classify(ctx context.Context, raw string, today models.Date) ([]models.QuerySpec, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(systemPrompt, today, today.Time().Weekday()),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: "Parse this query: " + raw,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	items, err := splitItems(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parse model response: %w", err)
	}

	specs := make([]models.QuerySpec, 0, len(items))
	for i, item := range items {
		spec, err := c.toSpec(item)
		if err != nil {
			c.log.Warn("dropping fallback item",
				logger.Int("index", i),
				logger.Error(err),
			)
			continue
		}
		specs = append(specs, spec)
	}
	c.log.Debug("fallback classification done",
		logger.Int("items", len(items)),
		logger.Int("specs", len(specs)),
		logger.Duration("latency", time.Since(start)),
		logger.Int("tokens", resp.Usage.TotalTokens),
	)
	return specs, nil
}

// item is one query as produced by the model.
type item struct {
	Market      string `json:"market" default:"DAM" validate:"oneof=DAM GDAM RTM"`
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Granularity string `json:"granularity" default:"hour" validate:"oneof=hour quarter"`
	Hours       []int  `json:"hours" validate:"omitempty,dive,min=1,max=24"`
	Slots       []int  `json:"slots" validate:"omitempty,dive,min=1,max=96"`
	Stat        string `json:"stat" default:"twap" validate:"oneof=twap vwap list daily_avg"`
}

func (c *LLMClassifier) toSpec(raw json.RawMessage) (models.QuerySpec, error) {
	var it item
	if err := json.Unmarshal(raw, &it); err != nil {
		return models.QuerySpec{}, fmt.Errorf("decode item: %w", err)
	}
	it.Market = strings.ToUpper(strings.TrimSpace(it.Market))
	it.Granularity = strings.ToLower(strings.TrimSpace(it.Granularity))
	it.Stat = strings.ToLower(strings.TrimSpace(it.Stat))
	if err := defaults.Set(&it); err != nil {
		return models.QuerySpec{}, fmt.Errorf("defaults: %w", err)
	}
	if err := c.validate.Struct(it); err != nil {
		return models.QuerySpec{}, fmt.Errorf("validate item: %w", err)
	}

	start, err := models.ParseDate(it.StartDate)
	if err != nil {
		return models.QuerySpec{}, err
	}
	end, err := models.ParseDate(it.EndDate)
	if err != nil {
		return models.QuerySpec{}, err
	}
	g := models.Granularity(it.Granularity)
	buckets := it.Hours
	if g == models.GranularityQuarter {
		buckets = it.Slots
	}
	if len(buckets) == 0 {
		buckets = models.BucketRange(1, g.MaxBucket())
	}
	return models.NewQuerySpec(models.Market(it.Market), start, end, g, buckets, models.Stat(it.Stat), nil)
}

var reFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// splitItems accepts {"queries": [...]}, a bare array or a single object,
// optionally wrapped in a markdown fence.
func splitItems(content string) ([]json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if m := reFence.FindStringSubmatch(content); m != nil {
		content = m[1]
	}
	data := []byte(content)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty content")
	}

	var items []json.RawMessage
	if bytes.HasPrefix(data, []byte("[")) {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var wrapper struct {
		Queries []json.RawMessage `json:"queries"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}
	if wrapper.Queries != nil {
		return wrapper.Queries, nil
	}
	return []json.RawMessage{data}, nil
}

// Noop never resolves anything. It stands in when no API key is set.
type Noop struct{}

func (Noop) Classify(context.Context, string, models.Date) ([]models.QuerySpec, error) {
	return nil, nil
}
