package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("catalog: not found")

type Repository interface {
	HealthCheck(ctx context.Context) error
	ListPromptExamples(ctx context.Context, modelExplore string) ([]PromptExample, error)
	CreatePromptExample(ctx context.Context, in CreatePromptExampleInput) (PromptExample, error)
	InsertExplorationLog(ctx context.Context, in InsertExplorationLogInput) (ExplorationLog, error)
	SetExplorationLogArchivePath(ctx context.Context, id int64, path string) error
	LookupAPIKey(ctx context.Context, keyHash string) (user string, roles string, err error)
}

// PromptExample is a curated question shown to users of an explore.
type PromptExample struct {
	ID           int64     `json:"id"`
	Description  string    `json:"description"`
	Prompt       string    `json:"prompt"`
	ModelExplore string    `json:"model_explore"`
	CreatedAt    time.Time `json:"created_at"`
}

type CreatePromptExampleInput struct {
	Description  string
	Prompt       string
	ModelExplore string
}

type Feedback string

const (
	FeedbackUp   Feedback = "up"
	FeedbackDown Feedback = "down"
	FeedbackNone Feedback = "none"
)

func ParseFeedback(raw string) (Feedback, error) {
	switch Feedback(strings.ToLower(strings.TrimSpace(raw))) {
	case FeedbackUp:
		return FeedbackUp, nil
	case FeedbackDown:
		return FeedbackDown, nil
	case FeedbackNone, "":
		return FeedbackNone, nil
	default:
		return "", fmt.Errorf("invalid feedback %q: expected up, down or none", raw)
	}
}

// ExplorationLog records a user's verdict on a translated question.
type ExplorationLog struct {
	ID           int64
	UserID       string
	ModelExplore string
	UserInput    string
	ModelFields  []byte
	Result       string
	Feedback     Feedback
	TraceID      string
	ArchivePath  string
	CreatedAt    time.Time
}

type InsertExplorationLogInput struct {
	UserID       string
	ModelExplore string
	UserInput    string
	ModelFields  []byte
	Result       string
	Feedback     Feedback
	TraceID      string
}

// ModelExplore joins a model and explore name the way prompt examples are keyed.
func ModelExplore(model, explore string) string {
	return model + "." + explore
}
