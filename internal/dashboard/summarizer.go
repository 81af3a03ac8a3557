package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/askbi/askbi/internal/llm"
	"github.com/askbi/askbi/internal/observability"
	"github.com/askbi/askbi/internal/prompt"
	"github.com/askbi/askbi/internal/queryspec"
)

const (
	kindTileSummary = "dashboard_summarize"
	kindAnswer      = "dashboard_answer"

	analystPrompt = "Act as an experienced Business Data Analyst and answer the question having into context the following Data: %s Question: %s"
)

var ErrNoAnswer = errors.New("model returned no answer")

type Config struct {
	MaxCharsPerPrompt int
	MaxCharsPerTile   int
	MinSummarizeChars int
	Concurrency       int
}

type Summarizer struct {
	Generator llm.Generator
	Prompts   *prompt.Catalog
	Config    Config
	Logger    *slog.Logger
}

// Summarize answers question over the dashboard data. When the serialized
// dashboard exceeds the prompt budget, mid-sized tiles are first replaced by
// model-written summaries.
func (s *Summarizer) Summarize(ctx context.Context, d Dashboard, question string) (string, error) {
	if s.Generator == nil {
		return "", fmt.Errorf("llm generator is required")
	}
	cfg := s.config()
	logger := observability.WithTrace(ctx, s.Logger).With(slog.String("dashboard_id", d.ID))

	payload, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("serialize dashboard: %w", err)
	}
	if len(payload) > cfg.MaxCharsPerPrompt {
		logger.InfoContext(ctx, "dashboard exceeds prompt budget", slog.Int("chars", len(payload)), slog.Int("budget", cfg.MaxCharsPerPrompt))
		compacted, err := s.compact(ctx, logger, cfg, d, question)
		if err != nil {
			return "", err
		}
		payload, err = json.Marshal(compacted)
		if err != nil {
			return "", fmt.Errorf("serialize summarized dashboard: %w", err)
		}
	}

	rendered := prompt.Escape(fmt.Sprintf(analystPrompt, payload, question))
	rows, err := s.Generator.Generate(ctx, kindAnswer, []string{rendered})
	if err != nil {
		return "", fmt.Errorf("answer dashboard question: %w", err)
	}
	var answer strings.Builder
	for _, row := range rows {
		if row.Failed() {
			return "", fmt.Errorf("answer dashboard question: %s: %w", row.Status, ErrNoAnswer)
		}
		answer.WriteString(row.Text)
	}
	if strings.TrimSpace(answer.String()) == "" {
		return "", ErrNoAnswer
	}
	return answer.String(), nil
}

func (s *Summarizer) config() Config {
	cfg := s.Config
	if cfg.MaxCharsPerPrompt <= 0 {
		cfg.MaxCharsPerPrompt = DefaultMaxCharsPerPrompt
	}
	if cfg.MaxCharsPerTile <= 0 {
		cfg.MaxCharsPerTile = DefaultMaxCharsPerTile
	}
	if cfg.MinSummarizeChars <= 0 {
		cfg.MinSummarizeChars = DefaultMinSummarizeChars
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return cfg
}

// compact summarizes every tile in the mid band concurrently. Each goroutine
// writes only its own slot of tiles.
func (s *Summarizer) compact(ctx context.Context, logger *slog.Logger, cfg Config, d Dashboard, question string) (Dashboard, error) {
	catalog := s.Prompts
	if catalog == nil {
		var err error
		if catalog, err = prompt.NewCatalog(nil); err != nil {
			return Dashboard{}, fmt.Errorf("build default prompt catalog: %w", err)
		}
	}

	tiles := make([]Tile, len(d.Tiles))
	copy(tiles, d.Tiles)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(cfg.Concurrency)
	summarized := 0
	for i, tile := range tiles {
		size := tile.size()
		switch {
		case size > cfg.MaxCharsPerTile:
			logger.WarnContext(ctx, "tile too large to summarize", slog.String("tile", tile.Title), slog.Int("chars", size))
			continue
		case size <= cfg.MinSummarizeChars:
			continue
		}
		summarized++
		group.Go(func() error {
			summary, err := s.summarizeTile(groupCtx, catalog, tile, question)
			if err != nil {
				return err
			}
			tiles[i].Data = summary
			return nil
		})
	}
	err := group.Wait()
	if err != nil {
		observability.ObserveTileSummaries(0, 1)
		return Dashboard{}, err
	}
	observability.ObserveTileSummaries(summarized, 0)
	logger.DebugContext(ctx, "tiles summarized", slog.Int("tiles", summarized))

	d.Tiles = tiles
	return d, nil
}

func (s *Summarizer) summarizeTile(ctx context.Context, catalog *prompt.Catalog, tile Tile, question string) (json.RawMessage, error) {
	tileContext, err := json.Marshal(struct {
		Title       string `json:"title,omitempty"`
		Description string `json:"description,omitempty"`
		Type        string `json:"type,omitempty"`
	}{tile.Title, tile.Description, tile.Type})
	if err != nil {
		return nil, fmt.Errorf("serialize tile context: %w", err)
	}
	rendered, err := catalog.Render(prompt.DashboardSummarize, prompt.Vars{
		TileContext:           string(tileContext),
		SerializedModelFields: string(tile.Data),
		UserInput:             question,
	})
	if err != nil {
		return nil, fmt.Errorf("render tile summary prompt: %w", err)
	}
	rows, err := s.Generator.Generate(ctx, kindTileSummary, []string{rendered})
	if err != nil {
		return nil, fmt.Errorf("summarize tile %q: %w", tile.Title, err)
	}
	if len(rows) == 0 {
		return nil, &SummarizationParseError{Tile: tile.Title}
	}
	if rows[0].Failed() {
		return nil, &SummarizationParseError{Tile: tile.Title, Status: rows[0].Status}
	}
	return summaryData(tile.Title, rows[0].Text)
}

// summaryData keeps a JSON summary as-is and wraps plain text as a JSON string.
func summaryData(tile, text string) (json.RawMessage, error) {
	cleaned := queryspec.StripFence(text)
	if cleaned == "" {
		return nil, &SummarizationParseError{Tile: tile}
	}
	if json.Valid([]byte(cleaned)) {
		return json.RawMessage(cleaned), nil
	}
	encoded, err := json.Marshal(cleaned)
	if err != nil {
		return nil, &SummarizationParseError{Tile: tile, Err: err}
	}
	return encoded, nil
}
