// Package openaienrich generates social copy for articles with an
// OpenAI-compatible chat model.
package openaienrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/nichewire/syndicator/internal/metrics"
	"github.com/nichewire/syndicator/internal/pipeline"
)

// ChatClient is the minimal surface needed to call a chat model. It mirrors
// the CreateChatCompletion method so any OpenAI-compatible backend fits.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config controls the enricher.
type Config struct {
	Model       string
	MaxRetries  int
	Temperature float32
}

// Enricher implements pipeline.Enricher using chat completions.
type Enricher struct {
	client ChatClient
	cfg    Config
	clock  pipeline.Clock
	logger *zap.Logger
}

var retryBackoff = []time.Duration{
	time.Second,
	2 * time.Second,
	4 * time.Second,
}

const systemPrompt = "You are a social media editor for a news syndication service. " +
	"Respond with strict JSON only, no narration. The JSON schema is " +
	`{"post_text": string, "hashtags": string[3..5], "key_points": string[2..4]}. ` +
	"post_text must be under 1200 characters, written for a professional audience, " +
	"and must not invent facts absent from the article."

const (
	defaultModel        = "gpt-4o-mini"
	maxBodyExcerptRunes = 2000
)

// New creates an Enricher.
func New(client ChatClient, cfg Config, clock pipeline.Clock, logger *zap.Logger) *Enricher {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Enricher{client: client, cfg: cfg, clock: clock, logger: logger}
}

// Enrich asks the model for a social post draft. Transient call failures are
// retried with backoff; a response that is not valid JSON is still used as
// plain post text so one malformed completion does not lose the article.
func (e *Enricher) Enrich(ctx context.Context, article pipeline.StoredArticle) (pipeline.Enrichment, error) {
	if e.client == nil {
		return pipeline.Enrichment{}, errors.New("enricher not configured")
	}

	req := openai.ChatCompletionRequest{
		Model: e.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(article)},
		},
		Temperature: e.cfg.Temperature,
		N:           1,
	}

	raw, err := e.completeWithRetry(ctx, req)
	if err != nil {
		metrics.ObserveEnrichment("error")
		return pipeline.Enrichment{}, err
	}

	enrichment := e.parseCompletion(raw)
	enrichment.Model = e.cfg.Model
	enrichment.EnrichedAt = e.clock.Now()
	metrics.ObserveEnrichment("success")
	return enrichment, nil
}

func (e *Enricher) completeWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff[min(attempt-1, len(retryBackoff)-1)]
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", fmt.Errorf("enrichment retry wait: %w", ctx.Err())
			case <-timer.C:
			}
		}

		resp, err := e.client.CreateChatCompletion(ctx, req)
		if err != nil {
			lastErr = err
			e.logger.Warn("enrichment call failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("no choices in completion")
			continue
		}
		content := strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			lastErr = errors.New("empty completion")
			continue
		}
		return content, nil
	}
	return "", fmt.Errorf("enrichment exhausted %d attempts: %w", e.cfg.MaxRetries, lastErr)
}

type completionPayload struct {
	PostText  string   `json:"post_text"`
	Hashtags  []string `json:"hashtags"`
	KeyPoints []string `json:"key_points"`
}

func (e *Enricher) parseCompletion(raw string) pipeline.Enrichment {
	cleaned := stripCodeFence(raw)

	var payload completionPayload
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil || payload.PostText == "" {
		e.logger.Warn("completion was not valid JSON, using raw text", zap.Error(err))
		return pipeline.Enrichment{PostText: cleaned}
	}
	return pipeline.Enrichment{
		PostText:  payload.PostText,
		Hashtags:  normalizeHashtags(payload.Hashtags),
		KeyPoints: payload.KeyPoints,
	}
}

func buildUserPrompt(article pipeline.StoredArticle) string {
	var b strings.Builder
	b.WriteString("Write a social media post for this article.\n\n")
	b.WriteString("Title: " + article.Article.Title + "\n")
	if article.Article.Author != "" {
		b.WriteString("Author: " + article.Article.Author + "\n")
	}
	if article.Article.Summary != "" {
		b.WriteString("Summary: " + article.Article.Summary + "\n")
	}
	if len(article.Article.Tags) > 0 {
		b.WriteString("Tags: " + strings.Join(article.Article.Tags, ", ") + "\n")
	}
	b.WriteString("URL: " + article.URL + "\n\n")
	b.WriteString("Article text:\n" + truncateRunes(article.Article.Body, maxBodyExcerptRunes))
	return b.String()
}

// stripCodeFence removes a surrounding markdown fence, which some models add
// even when told to emit bare JSON.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func normalizeHashtags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		out = append(out, tag)
	}
	return out
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
