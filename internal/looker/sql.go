package looker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/askbi/askbi/internal/llm"
	"github.com/askbi/askbi/internal/observability"
)

// StatementBuilder renders the batched generation statement for a set of prompts.
type StatementBuilder interface {
	Statement(kind string, prompts []string) string
}

type SQLGeneratorConfig struct {
	// Model is the LookML model whose first allowed connection runs the statements.
	Model string
	// Connection skips the model lookup when set.
	Connection string
}

// SQLGenerator sends generation statements through the platform's SQL runner,
// so they execute on the warehouse connection in its own dialect.
type SQLGenerator struct {
	client     *Client
	statements StatementBuilder
	model      string

	mu         sync.Mutex
	connection string
}

func NewSQLGenerator(client *Client, statements StatementBuilder, cfg SQLGeneratorConfig) (*SQLGenerator, error) {
	if client == nil {
		return nil, fmt.Errorf("looker client is required")
	}
	if statements == nil {
		return nil, fmt.Errorf("statement builder is required")
	}
	model := strings.TrimSpace(cfg.Model)
	connection := strings.TrimSpace(cfg.Connection)
	if model == "" && connection == "" {
		return nil, fmt.Errorf("connection model or connection name is required")
	}
	return &SQLGenerator{client: client, statements: statements, model: model, connection: connection}, nil
}

func (g *SQLGenerator) Generate(ctx context.Context, kind string, prompts []string) ([]llm.Row, error) {
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

func (g *SQLGenerator) run(ctx context.Context, kind string, prompts []string) ([]llm.Row, error) {
	op := "generate " + kind
	connection, err := g.connectionName(ctx)
	if err != nil {
		return nil, &llm.TransportError{Op: op, Err: err}
	}

	var created struct {
		Slug string `json:"slug"`
	}
	payload := map[string]string{"connection_name": connection, "sql": g.statements.Statement(kind, prompts)}
	if err := g.client.do(ctx, "POST", "/sql_queries", payload, &created); err != nil {
		return nil, &llm.TransportError{Op: op, Err: fmt.Errorf("create sql query: %w", err)}
	}
	if created.Slug == "" {
		return nil, &llm.TransportError{Op: op, Err: fmt.Errorf("create sql query returned no slug")}
	}

	var answer []map[string]any
	if err := g.client.do(ctx, "POST", "/sql_queries/"+url.PathEscape(created.Slug)+"/run/json", nil, &answer); err != nil {
		return nil, &llm.TransportError{Op: op, Err: fmt.Errorf("run sql query %s: %w", created.Slug, err)}
	}

	results := make([]llm.Row, len(prompts))
	seen := make([]bool, len(prompts))
	for _, row := range answer {
		idx, ok := rowIndex(row["idx"])
		if !ok {
			return nil, &llm.TransportError{Op: op, Err: fmt.Errorf("result row without idx")}
		}
		if idx < 0 || idx >= len(prompts) {
			return nil, &llm.TransportError{Op: op, Err: fmt.Errorf("result index %d out of range", idx)}
		}
		results[idx] = llm.Row{Text: cellText(row["r"]), Status: strings.TrimSpace(cellText(row["status"]))}
		seen[idx] = true
	}
	for i := range results {
		if !seen[i] {
			results[i] = llm.Row{Status: llm.MissingResultStatus}
		}
	}
	return results, nil
}

// connectionName resolves the model's first allowed connection once.
func (g *SQLGenerator) connectionName(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connection != "" {
		return g.connection, nil
	}
	var model struct {
		AllowedDBConnectionNames []string `json:"allowed_db_connection_names"`
	}
	if err := g.client.do(ctx, "GET", "/lookml_models/"+url.PathEscape(g.model), nil, &model); err != nil {
		return "", fmt.Errorf("lookup model %s: %w", g.model, err)
	}
	if len(model.AllowedDBConnectionNames) == 0 || model.AllowedDBConnectionNames[0] == "" {
		return "", fmt.Errorf("model %s allows no db connection", g.model)
	}
	g.connection = model.AllowedDBConnectionNames[0]
	return g.connection, nil
}

func rowIndex(value any) (int, bool) {
	switch typed := value.(type) {
	case float64:
		return int(typed), true
	case string:
		idx, err := strconv.Atoi(strings.TrimSpace(typed))
		return idx, err == nil
	case json.Number:
		idx, err := strconv.Atoi(typed.String())
		return idx, err == nil
	default:
		return 0, false
	}
}

func cellText(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}
