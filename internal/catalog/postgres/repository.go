package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/askbi/askbi/internal/catalog"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

// ListPromptExamples returns curated questions, optionally only those of one
// model explore.
func (r *Repository) ListPromptExamples(ctx context.Context, modelExplore string) ([]catalog.PromptExample, error) {
	query := `
SELECT id, description, prompt, model_explore, created_at
FROM explore_prompts`
	args := []any{}
	if modelExplore = strings.TrimSpace(modelExplore); modelExplore != "" {
		query += `
WHERE model_explore = $1`
		args = append(args, modelExplore)
	}
	query += `
ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list prompt examples: %w", err)
	}
	defer func() { _ = rows.Close() }()

	examples := make([]catalog.PromptExample, 0)
	for rows.Next() {
		var example catalog.PromptExample
		if err := rows.Scan(&example.ID, &example.Description, &example.Prompt, &example.ModelExplore, &example.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prompt example row: %w", err)
		}
		examples = append(examples, example)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prompt example rows: %w", err)
	}
	return examples, nil
}

func (r *Repository) CreatePromptExample(ctx context.Context, in catalog.CreatePromptExampleInput) (catalog.PromptExample, error) {
	if strings.TrimSpace(in.Prompt) == "" || strings.TrimSpace(in.ModelExplore) == "" {
		return catalog.PromptExample{}, fmt.Errorf("prompt and model_explore are required")
	}
	query := `
INSERT INTO explore_prompts (description, prompt, model_explore)
VALUES ($1, $2, $3)
RETURNING id, created_at`

	example := catalog.PromptExample{
		Description:  in.Description,
		Prompt:       in.Prompt,
		ModelExplore: in.ModelExplore,
	}
	if err := r.db.QueryRowContext(ctx, query, in.Description, in.Prompt, in.ModelExplore).Scan(&example.ID, &example.CreatedAt); err != nil {
		return catalog.PromptExample{}, fmt.Errorf("create prompt example: %w", err)
	}
	return example, nil
}

func (r *Repository) InsertExplorationLog(ctx context.Context, in catalog.InsertExplorationLogInput) (catalog.ExplorationLog, error) {
	feedback := in.Feedback
	if feedback == "" {
		feedback = catalog.FeedbackNone
	}
	modelFields := in.ModelFields
	if len(modelFields) == 0 {
		modelFields = []byte("[]")
	}

	query := `
INSERT INTO explore_logging (user_id, model_explore, user_input, model_fields, result, feedback, trace_id)
VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)
RETURNING id, created_at`

	entry := catalog.ExplorationLog{
		UserID:       in.UserID,
		ModelExplore: in.ModelExplore,
		UserInput:    in.UserInput,
		ModelFields:  modelFields,
		Result:       in.Result,
		Feedback:     feedback,
		TraceID:      in.TraceID,
	}
	if err := r.db.QueryRowContext(ctx, query,
		in.UserID,
		in.ModelExplore,
		in.UserInput,
		string(modelFields),
		in.Result,
		string(feedback),
		in.TraceID,
	).Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return catalog.ExplorationLog{}, fmt.Errorf("insert exploration log: %w", err)
	}
	return entry, nil
}

func (r *Repository) SetExplorationLogArchivePath(ctx context.Context, id int64, path string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE explore_logging
SET archive_path = $2
WHERE id = $1`, id, path)
	if err != nil {
		return fmt.Errorf("set exploration log archive path: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set exploration log archive path rows affected: %w", err)
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// LookupAPIKey resolves an unrevoked key hash to its user and role list.
func (r *Repository) LookupAPIKey(ctx context.Context, keyHash string) (string, string, error) {
	query := `
SELECT user_id, roles
FROM api_key
WHERE key_hash = $1 AND revoked_at IS NULL`

	var user, roles string
	if err := r.db.QueryRowContext(ctx, query, keyHash).Scan(&user, &roles); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", catalog.ErrNotFound
		}
		return "", "", fmt.Errorf("lookup api key: %w", err)
	}
	return user, roles, nil
}
