// Package healthlog turns free-text health messages into stored
// episodes, observations and interventions.
package healthlog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nanaoosaki/health-companion/internal/episode"
	"github.com/nanaoosaki/health-companion/internal/llm"
	"github.com/nanaoosaki/health-companion/internal/prompts"
)

// Extractor reads structured health data out of a message with one LLM
// call.
type Extractor struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

// NewExtractor creates an extractor that calls model through client.
func NewExtractor(client llm.Client, model string, logger *slog.Logger) *Extractor {
	return &Extractor{client: client, model: model, logger: logger}
}

// Extract returns the validated extraction and the raw JSON it came from.
// Open candidates are shown to the model so it can propose an episode id.
func (e *Extractor) Extract(ctx context.Context, message string, history []string, candidates []episode.Candidate) (episode.Extraction, []byte, error) {
	lines := make([]prompts.CandidateLine, len(candidates))
	for i, c := range candidates {
		lines[i] = prompts.CandidateLine{
			EpisodeID:     c.EpisodeID,
			Condition:     c.Condition,
			StartedAt:     c.StartedAt,
			LastUpdatedAt: c.LastUpdatedAt,
			Salient:       c.Salient,
		}
	}

	system, user := prompts.ExtractorMessages(message, history, lines)
	resp, err := e.client.Chat(ctx, e.model, []llm.Message{llm.System(system), llm.User(user)},
		llm.CallOptions{JSON: true, Temperature: 0.1, MaxTokens: 600})
	if err != nil {
		return episode.Extraction{}, nil, fmt.Errorf("extraction call: %w", err)
	}

	raw, err := llm.ExtractJSON(resp.Message.Content)
	if err != nil {
		return episode.Extraction{}, nil, fmt.Errorf("extraction reply: %w", err)
	}
	ex, err := episode.ParseExtraction(raw)
	if err != nil {
		return episode.Extraction{}, raw, err
	}

	e.logger.Debug("extracted health data",
		"intent", ex.Intent,
		"condition", ex.Condition,
		"link_strategy", ex.LinkStrategy,
		"confidence", ex.Confidence,
	)
	return ex, raw, nil
}
