package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/askbi/askbi/internal/catalog"
)

func TestListPromptExamplesFiltersByModelExplore(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT id, description, prompt, model_explore, created_at
FROM explore_prompts
WHERE model_explore = $1
ORDER BY id ASC`)).
		WithArgs("thelook.order_items").
		WillReturnRows(sqlmock.NewRows([]string{"id", "description", "prompt", "model_explore", "created_at"}).
			AddRow(int64(1), "Top brands", "What are the top 10 brands by sales?", "thelook.order_items", now).
			AddRow(int64(2), "Recent orders", "How many orders in the past 7 days?", "thelook.order_items", now))

	examples, err := repo.ListPromptExamples(context.Background(), "thelook.order_items")
	if err != nil {
		t.Fatalf("ListPromptExamples() error = %v", err)
	}
	if len(examples) != 2 || examples[1].Description != "Recent orders" {
		t.Fatalf("examples = %+v", examples)
	}
	assertSQLMock(t, mock)
}

func TestListPromptExamplesAll(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT id, description, prompt, model_explore, created_at
FROM explore_prompts
ORDER BY id ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "description", "prompt", "model_explore", "created_at"}))

	examples, err := repo.ListPromptExamples(context.Background(), "")
	if err != nil {
		t.Fatalf("ListPromptExamples() error = %v", err)
	}
	if examples == nil || len(examples) != 0 {
		t.Fatalf("examples = %#v, want empty non-nil slice", examples)
	}
	assertSQLMock(t, mock)
}

func TestCreatePromptExample(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO explore_prompts (description, prompt, model_explore)
VALUES ($1, $2, $3)
RETURNING id, created_at`)).
		WithArgs("Top brands", "top 10 brands", "thelook.order_items").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(5), now))

	example, err := repo.CreatePromptExample(context.Background(), catalog.CreatePromptExampleInput{
		Description:  "Top brands",
		Prompt:       "top 10 brands",
		ModelExplore: "thelook.order_items",
	})
	if err != nil {
		t.Fatalf("CreatePromptExample() error = %v", err)
	}
	if example.ID != 5 || !example.CreatedAt.Equal(now) {
		t.Fatalf("example = %+v", example)
	}
	assertSQLMock(t, mock)
}

func TestCreatePromptExampleValidates(t *testing.T) {
	db, _ := newSQLMock(t)
	if _, err := NewRepository(db).CreatePromptExample(context.Background(), catalog.CreatePromptExampleInput{}); err == nil {
		t.Fatal("CreatePromptExample() expected validation error")
	}
}

func TestInsertExplorationLogDefaults(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO explore_logging (user_id, model_explore, user_input, model_fields, result, feedback, trace_id)
VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
RETURNING id, created_at`)).
		WithArgs("alice", "thelook.order_items", "top brands", "[]", `{"fields":[]}`, "none", "trace-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(9), now))

	entry, err := repo.InsertExplorationLog(context.Background(), catalog.InsertExplorationLogInput{
		UserID:       "alice",
		ModelExplore: "thelook.order_items",
		UserInput:    "top brands",
		Result:       `{"fields":[]}`,
		TraceID:      "trace-1",
	})
	if err != nil {
		t.Fatalf("InsertExplorationLog() error = %v", err)
	}
	if entry.ID != 9 || entry.Feedback != catalog.FeedbackNone {
		t.Fatalf("entry = %+v", entry)
	}
	assertSQLMock(t, mock)
}

func TestSetExplorationLogArchivePathNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`
UPDATE explore_logging
SET archive_path = $2
WHERE id = $1`)).
		WithArgs(int64(404), "feedback/x.parquet").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetExplorationLogArchivePath(context.Background(), 404, "feedback/x.parquet")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("SetExplorationLogArchivePath() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestLookupAPIKey(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	query := regexp.QuoteMeta(`
SELECT user_id, roles
FROM api_key
WHERE key_hash = $1 AND revoked_at IS NULL`)

	mock.ExpectQuery(query).
		WithArgs("hash-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "roles"}).AddRow("bob", "explore_user|dashboard_user"))
	mock.ExpectQuery(query).
		WithArgs("hash-2").
		WillReturnError(sql.ErrNoRows)

	user, roles, err := repo.LookupAPIKey(context.Background(), "hash-1")
	if err != nil {
		t.Fatalf("LookupAPIKey() error = %v", err)
	}
	if user != "bob" || roles != "explore_user|dashboard_user" {
		t.Fatalf("LookupAPIKey() = %q, %q", user, roles)
	}
	if _, _, err := repo.LookupAPIKey(context.Background(), "hash-2"); err != catalog.ErrNotFound {
		t.Fatalf("LookupAPIKey() error = %v, want %v", err, catalog.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestHealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	if err := NewRepository(db).HealthCheck(context.Background()); err == nil {
		t.Fatal("HealthCheck() expected error")
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
