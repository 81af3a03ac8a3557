package looker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/askbi/askbi/internal/llm"
	"github.com/askbi/askbi/internal/llm/bigquery"
)

func newUDFStatements(t *testing.T) *bigquery.Statements {
	t.Helper()
	statements, err := bigquery.NewStatements(bigquery.Config{RemoteFunction: "llm.bq_vertex_remote", Version: "test"})
	if err != nil {
		t.Fatalf("NewStatements() error = %v", err)
	}
	return statements
}

func TestSQLGeneratorRunsStatementOnModelConnection(t *testing.T) {
	var modelLookups atomic.Int32
	var created map[string]string
	fake := &fakeLooker{handler: func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/4.0/lookml_models/looker-genai":
			modelLookups.Add(1)
			_, _ = io.WriteString(w, `{"allowed_db_connection_names":["genai-bq","other"]}`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/4.0/sql_queries":
			if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
				t.Errorf("decode body error = %v", err)
			}
			_, _ = io.WriteString(w, `{"slug":"s1"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/api/4.0/sql_queries/s1/run/json":
			_, _ = io.WriteString(w, `[{"idx":2,"r":"c","status":""},{"idx":0,"r":"a","status":null},{"idx":"1","r":null,"status":"quota exceeded"}]`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}}
	client := newTestClient(t, newTestServer(t, fake))
	generator, err := NewSQLGenerator(client, newUDFStatements(t), SQLGeneratorConfig{Model: "looker-genai"})
	if err != nil {
		t.Fatalf("NewSQLGenerator() error = %v", err)
	}

	prompts := []string{`brand Levi\'s`, "p1", "p2"}
	rows, err := generator.Generate(context.Background(), "Explore", prompts)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(rows) != 3 || rows[0].Text != "a" || rows[2].Text != "c" {
		t.Fatalf("rows = %+v", rows)
	}
	if !rows[1].Failed() || rows[1].Status != "quota exceeded" {
		t.Fatalf("rows[1] = %+v, want failed", rows[1])
	}
	if created["connection_name"] != "genai-bq" {
		t.Fatalf("connection_name = %q", created["connection_name"])
	}
	if !strings.Contains(created["sql"], `llm.bq_vertex_remote('brand Levi\'s')`) {
		t.Fatalf("sql = %s", created["sql"])
	}
	if strings.Count(created["sql"], "UNION ALL") != 2 {
		t.Fatalf("sql should batch every prompt: %s", created["sql"])
	}

	if _, err := generator.Generate(context.Background(), "Explore", prompts); err != nil {
		t.Fatalf("second Generate() error = %v", err)
	}
	if got := modelLookups.Load(); got != 1 {
		t.Fatalf("model lookups = %d, want 1", got)
	}
}

func TestSQLGeneratorMarksMissingRows(t *testing.T) {
	fake := &fakeLooker{handler: func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/4.0/sql_queries":
			_, _ = io.WriteString(w, `{"slug":"s2"}`)
		default:
			_, _ = io.WriteString(w, `[{"idx":0,"r":"only","status":""}]`)
		}
	}}
	client := newTestClient(t, newTestServer(t, fake))
	generator, err := NewSQLGenerator(client, newUDFStatements(t), SQLGeneratorConfig{Connection: "genai-bq"})
	if err != nil {
		t.Fatalf("NewSQLGenerator() error = %v", err)
	}
	rows, err := generator.Generate(context.Background(), "Explore", []string{"p0", "p1"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if rows[1].Status != llm.MissingResultStatus {
		t.Fatalf("rows[1] = %+v", rows[1])
	}
}

func TestSQLGeneratorFailuresAreTransportErrors(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"no connection": func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"allowed_db_connection_names":[]}`)
		},
		"create rejected": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/4.0/sql_queries" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = io.WriteString(w, `{"allowed_db_connection_names":["genai-bq"]}`)
		},
		"run rejected": func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/api/4.0/sql_queries":
				_, _ = io.WriteString(w, `{"slug":"s3"}`)
			case "/api/4.0/sql_queries/s3/run/json":
				w.WriteHeader(http.StatusInternalServerError)
			default:
				_, _ = io.WriteString(w, `{"allowed_db_connection_names":["genai-bq"]}`)
			}
		},
	}
	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			client := newTestClient(t, newTestServer(t, &fakeLooker{handler: handler}))
			generator, err := NewSQLGenerator(client, newUDFStatements(t), SQLGeneratorConfig{Model: "looker-genai"})
			if err != nil {
				t.Fatalf("NewSQLGenerator() error = %v", err)
			}
			_, err = generator.Generate(context.Background(), "Explore", []string{"p0"})
			var transportErr *llm.TransportError
			if !errors.As(err, &transportErr) {
				t.Fatalf("Generate() error = %v, want TransportError", err)
			}
		})
	}
}

func TestSQLGeneratorWithoutPromptsSkipsRoundTrip(t *testing.T) {
	fake := &fakeLooker{handler: func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}}
	client := newTestClient(t, newTestServer(t, fake))
	generator, err := NewSQLGenerator(client, newUDFStatements(t), SQLGeneratorConfig{Model: "looker-genai"})
	if err != nil {
		t.Fatalf("NewSQLGenerator() error = %v", err)
	}
	rows, err := generator.Generate(context.Background(), "Explore", nil)
	if err != nil || rows != nil {
		t.Fatalf("Generate() = %v, %v", rows, err)
	}
	if fake.logins.Load() != 0 {
		t.Fatal("login should not happen without prompts")
	}
}

func TestNewSQLGeneratorValidation(t *testing.T) {
	client := &Client{}
	if _, err := NewSQLGenerator(nil, newUDFStatements(t), SQLGeneratorConfig{Model: "m"}); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewSQLGenerator(client, nil, SQLGeneratorConfig{Model: "m"}); err == nil {
		t.Fatal("expected error for nil statements")
	}
	if _, err := NewSQLGenerator(client, newUDFStatements(t), SQLGeneratorConfig{}); err == nil {
		t.Fatal("expected error without model or connection")
	}
}
