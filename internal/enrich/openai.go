// Meridian - OSINT Situational Awareness for Mission Operations
// Copyright 2026 Meridian Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/meridianops/meridian

package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"

	"github.com/meridianops/meridian/internal/config"
	"github.com/meridianops/meridian/internal/models"
)

// OpenAIEnricher serves the subpasses through an OpenAI-compatible chat
// completion endpoint. Any transport or parse error surfaces to the
// pipeline, which falls back for that subpass.
type OpenAIEnricher struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

var _ Enricher = (*OpenAIEnricher)(nil)

// NewOpenAIEnricher builds an enricher from the LLM config section.
func NewOpenAIEnricher(cfg *config.LLMConfig) *OpenAIEnricher {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEnricher{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
	}
}

const entitiesSystemPrompt = `You extract entities from news text for situational awareness.
Respond with a JSON object holding five string arrays:
{"locations": [], "organizations": [], "groups": [], "topics": [], "keywords": []}.
Use names exactly as written in the text. Omit nothing else.`

// ExtractEntities asks the model for the five axis lists as JSON.
func (e *OpenAIEnricher) ExtractEntities(ctx context.Context, title, text string) (models.EntityBag, error) {
	out, err := e.complete(ctx, entitiesSystemPrompt, title+"\n\n"+text, true)
	if err != nil {
		return models.EntityBag{}, err
	}
	var bag models.EntityBag
	if err := json.Unmarshal([]byte(out), &bag); err != nil {
		return models.EntityBag{}, fmt.Errorf("invalid entities payload: %w", err)
	}
	return bag, nil
}

const summarySystemPrompt = `Summarize the news item in one or two neutral sentences,
at most 320 characters. Do not editorialize. Respond with the summary text only.`

// Summarize asks the model for a neutral summary, clamped to the cap.
func (e *OpenAIEnricher) Summarize(ctx context.Context, title, text string) (string, error) {
	out, err := e.complete(ctx, summarySystemPrompt, title+"\n\n"+text, false)
	if err != nil {
		return "", err
	}
	summary := TruncateSummary(out)
	if summary == "" {
		return "", errors.New("empty summary from model")
	}
	return summary, nil
}

const sentimentSystemPrompt = `Classify the overall sentiment of the news item.
Respond with exactly one word: positive, neutral, or negative.`

// Sentiment asks the model for a single-token classification.
func (e *OpenAIEnricher) Sentiment(ctx context.Context, title, text string) (models.Sentiment, error) {
	out, err := e.complete(ctx, sentimentSystemPrompt, title+"\n\n"+text, false)
	if err != nil {
		return "", err
	}
	s := models.Sentiment(strings.ToLower(strings.TrimSpace(out)))
	switch s {
	case models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative:
		return s, nil
	}
	return "", fmt.Errorf("invalid sentiment %q from model", out)
}

var categorizeSystemPrompt = `Classify the news item into exactly one category.
Respond with one word from: ` + strings.Join(categoryNames(), ", ") + `.`

// Categorize asks the model for one of the twelve categories.
func (e *OpenAIEnricher) Categorize(ctx context.Context, title, text string) (models.Category, error) {
	out, err := e.complete(ctx, categorizeSystemPrompt, title+"\n\n"+text, false)
	if err != nil {
		return "", err
	}
	cat := models.Category(strings.ToLower(strings.TrimSpace(out)))
	if !cat.IsValid() {
		return "", fmt.Errorf("invalid category %q from model", out)
	}
	return cat, nil
}

func (e *OpenAIEnricher) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func categoryNames() []string {
	names := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		names[i] = string(c)
	}
	return names
}
