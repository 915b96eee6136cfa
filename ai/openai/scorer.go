package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/scholarquery/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Scorer implements ai.Scorer using an OpenAI-compatible chat model as a
// cross-encoder style relevance judge.
type Scorer struct {
	client llms.Model
	logger *slog.Logger
}

// NewScorer creates a new relevance scorer using the provided configuration.
//
// Returns ai.Scorer interface to enforce abstraction.
func NewScorer(config *ai.Config) (ai.Scorer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken("none"),
		openai.WithModel(config.GenerationModel),
	)
	if err != nil {
		return nil, err
	}

	return &Scorer{
		client: client,
		logger: slog.Default().With("component", "openai-scorer"),
	}, nil
}

// ScorePassages rates each passage's relevance to the query.
// Returns one score per passage, in input order.
func (s *Scorer) ScorePassages(ctx context.Context, query string, passages []string) ([]float32, error) {
	if len(passages) == 0 {
		return []float32{}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Query: %s\n\n", query)
	for i, passage := range passages {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, passage)
	}

	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(scoringSystemPrompt),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(sb.String()),
			},
		},
	}

	// Try up to 3 times in case of malformed JSON
	var scores []float32
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		response, err := s.client.GenerateContent(ctx, content, llms.WithTemperature(0.0))
		if err != nil {
			s.logger.Error("failed to score passages", "attempt", attempt+1, "err", err)
			return nil, err
		}

		if len(response.Choices) < 1 {
			s.logger.Debug("no choices returned from model")
			return nil, fmt.Errorf("scorer returned no choices")
		}

		// Strip markdown code fences if present
		responseText := strings.TrimSpace(response.Choices[0].Content)
		responseText = strings.TrimPrefix(responseText, "```json")
		responseText = strings.TrimPrefix(responseText, "```")
		responseText = strings.TrimSuffix(responseText, "```")
		responseText = strings.TrimSpace(responseText)

		if err := json.Unmarshal([]byte(responseText), &scores); err != nil {
			lastErr = err
			s.logger.Warn("error parsing scorer response",
				"attempt", attempt+1,
				"response", responseText,
				"err", err)
			continue
		}

		lastErr = nil
		break
	}

	if lastErr != nil {
		s.logger.Error("failed to parse scorer response after retries", "err", lastErr)
		return nil, lastErr
	}

	if len(scores) != len(passages) {
		return nil, fmt.Errorf("scorer result mismatch: expected %d scores, received %d", len(passages), len(scores))
	}

	// Clamp to [0, 1]
	for i, score := range scores {
		if score < 0 {
			scores[i] = 0
		}
		if score > 1 {
			scores[i] = 1
		}
	}
	return scores, nil
}
