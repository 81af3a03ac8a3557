package bigquery

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/askbi/askbi/internal/llm"
	"github.com/askbi/askbi/internal/observability"
)

type Config struct {
	Model           string
	RemoteFunction  string
	UseNative       bool
	Temperature     float64
	MaxOutputTokens int
	TopP            float64
	TopK            int
	Version         string
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Statements builds the BigQuery statement that generates text for a batch
// of prompts. Every sub-select carries the prompt ordinal as idx and answers
// with the columns idx, r and status.
type Statements struct {
	cfg Config
}

func NewStatements(cfg Config) (*Statements, error) {
	if cfg.UseNative && strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("model is required for native generation")
	}
	if !cfg.UseNative && strings.TrimSpace(cfg.RemoteFunction) == "" {
		return nil, fmt.Errorf("remote function is required for udf generation")
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = 1024
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 1
	}
	return &Statements{cfg: cfg}, nil
}

// Generator runs prompts through a text-generation model exposed as a SQL
// table function on a database/sql connection that speaks BigQuery. All
// prompts of a call travel in one statement.
type Generator struct {
	db         queryer
	statements *Statements
}

func NewGenerator(db queryer, cfg Config) (*Generator, error) {
	if db == nil {
		return nil, fmt.Errorf("warehouse db is required")
	}
	statements, err := NewStatements(cfg)
	if err != nil {
		return nil, err
	}
	return &Generator{db: db, statements: statements}, nil
}

// Generate expects prompts that are already escaped for a single-quoted literal.
func (g *Generator) Generate(ctx context.Context, kind string, prompts []string) ([]llm.Row, error) {
	if len(prompts) == 0 {
		return nil, nil
	}
	start := time.Now()
	rows, err := g.run(ctx, kind, prompts)
	outcome := "ok"
	if err != nil {
		outcome = "transport_error"
	}
	observability.ObserveLLMCall(kind, len(prompts), outcome, time.Since(start))
	return rows, err
}

func (g *Generator) run(ctx context.Context, kind string, prompts []string) ([]llm.Row, error) {
	statement := g.Statement(kind, prompts)
	rows, err := g.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, &llm.TransportError{Op: "generate " + kind, Err: err}
	}
	defer func() { _ = rows.Close() }()

	results := make([]llm.Row, len(prompts))
	seen := make([]bool, len(prompts))
	for rows.Next() {
		var (
			idx    int64
			text   sql.NullString
			status sql.NullString
		)
		if err := rows.Scan(&idx, &text, &status); err != nil {
			return nil, &llm.TransportError{Op: "generate " + kind, Err: fmt.Errorf("scan row: %w", err)}
		}
		if idx < 0 || idx >= int64(len(prompts)) {
			return nil, &llm.TransportError{Op: "generate " + kind, Err: fmt.Errorf("result index %d out of range", idx)}
		}
		results[idx] = llm.Row{Text: text.String, Status: strings.TrimSpace(status.String)}
		seen[idx] = true
	}
	if err := rows.Err(); err != nil {
		return nil, &llm.TransportError{Op: "generate " + kind, Err: fmt.Errorf("iterate rows: %w", err)}
	}
	for i := range results {
		if !seen[i] {
			results[i] = llm.Row{Status: llm.MissingResultStatus}
		}
	}
	return results, nil
}

// Statement builds the single SQL statement that generates text for every prompt.
func (g *Generator) Statement(kind string, prompts []string) string {
	return g.statements.Statement(kind, prompts)
}

// Statement expects prompts that are already escaped for a single-quoted literal.
func (s *Statements) Statement(kind string, prompts []string) string {
	cfg := s.cfg
	selects := make([]string, 0, len(prompts))
	for i, prompt := range prompts {
		if cfg.UseNative {
			selects = append(selects, fmt.Sprintf("SELECT %d AS idx, '%s' AS prompt", i, prompt))
		} else {
			selects = append(selects, fmt.Sprintf("SELECT %d AS idx, %s('%s') AS r, '' AS status", i, cfg.RemoteFunction, prompt))
		}
	}
	body := strings.Join(selects, " UNION ALL ")
	header := fmt.Sprintf("-- askbi - %s - v: %s\n", kind, cfg.Version)
	if !cfg.UseNative {
		return header + body
	}
	return header + `SELECT idx, ml_generate_text_llm_result AS r, ml_generate_text_status AS status
FROM ML.GENERATE_TEXT(
	MODEL ` + cfg.Model + `,
	(` + body + `),
	STRUCT(
		` + formatFloat(cfg.Temperature) + ` AS temperature,
		` + strconv.Itoa(cfg.MaxOutputTokens) + ` AS max_output_tokens,
		` + formatFloat(cfg.TopP) + ` AS top_p,
		TRUE AS flatten_json_output,
		` + strconv.Itoa(cfg.TopK) + ` AS top_k))`
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
