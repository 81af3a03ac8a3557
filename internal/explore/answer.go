package explore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/askbi/askbi/internal/observability"
	"github.com/askbi/askbi/internal/prompt"
)

var ErrNoAnswer = errors.New("model returned no answer")

type AnswerRequest struct {
	Question string
	QueryID  string
}

// Answer runs an existing query and asks the model to phrase its rows as a
// natural-language answer to the question.
func (p *Pipeline) Answer(ctx context.Context, req AnswerRequest) (string, error) {
	d, err := p.resolve()
	if err != nil {
		return "", err
	}
	if d.runner == nil {
		return "", fmt.Errorf("query runner is required")
	}
	if strings.TrimSpace(req.QueryID) == "" {
		return "", fmt.Errorf("query id is required")
	}
	logger := observability.WithTrace(ctx, d.logger).With(slog.String("query_id", req.QueryID))

	rows, err := d.runner.RunQuery(ctx, req.QueryID)
	if err != nil {
		return "", fmt.Errorf("run query %s: %w", req.QueryID, err)
	}
	data, kept := truncateRows(rows, d.cfg.MaxCharsPerPrompt)
	if kept < len(rows) {
		logger.InfoContext(ctx, "query rows truncated", slog.Int("rows", len(rows)), slog.Int("kept", kept))
	}

	rendered, err := d.prompts.Render(prompt.ExplorationOutput, prompt.Vars{
		SerializedModelFields: data,
		UserInput:             req.Question,
	})
	if err != nil {
		return "", fmt.Errorf("render exploration prompt: %w", err)
	}
	results, err := d.bridge.Generate(ctx, kindExploration, []string{rendered})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}

	var answer strings.Builder
	for _, row := range results {
		if row.Failed() {
			return "", fmt.Errorf("generate answer: %s: %w", row.Status, ErrNoAnswer)
		}
		answer.WriteString(row.Text)
	}
	if strings.TrimSpace(answer.String()) == "" {
		return "", ErrNoAnswer
	}
	return answer.String(), nil
}

// truncateRows serializes rows, keeping the longest prefix whose JSON array
// stays within limit characters.
func truncateRows(rows []map[string]any, limit int) (string, int) {
	var buf strings.Builder
	buf.WriteByte('[')
	kept := 0
	for _, row := range rows {
		encoded, err := json.Marshal(row)
		if err != nil {
			continue
		}
		extra := len(encoded) + 1
		if kept > 0 {
			extra++
		}
		if buf.Len()+extra > limit {
			break
		}
		if kept > 0 {
			buf.WriteByte(',')
		}
		buf.Write(encoded)
		kept++
	}
	buf.WriteByte(']')
	return buf.String(), kept
}
