package archive

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/askbi/askbi/internal/catalog"
	"github.com/askbi/askbi/internal/observability"
)

// LogWriter persists exploration logs.
type LogWriter interface {
	InsertExplorationLog(ctx context.Context, in catalog.InsertExplorationLogInput) (catalog.ExplorationLog, error)
}

// FeedbackRequest is a user's verdict on a translated question.
type FeedbackRequest struct {
	Model       string
	Explore     string
	Question    string
	ModelFields []byte
	Result      string
	Feedback    string
}

// Recorder persists exploration feedback and, when an Archiver is set,
// copies each row to object storage. Storage failures are logged and
// reported through the returned Recorded flag, never as errors.
type Recorder struct {
	Logs     LogWriter
	Archiver *Archiver
	Logger   *slog.Logger
}

type Recorded struct {
	LogID       int64  `json:"log_id,omitempty"`
	Stored      bool   `json:"stored"`
	ArchivePath string `json:"archive_path,omitempty"`
}

// ValidationError reports a feedback request that cannot be recorded.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid feedback: " + e.Reason
}

func (r *Recorder) Record(ctx context.Context, req FeedbackRequest) (Recorded, error) {
	model := strings.TrimSpace(req.Model)
	explore := strings.TrimSpace(req.Explore)
	if model == "" || explore == "" {
		return Recorded{}, &ValidationError{Reason: "model and explore are required"}
	}
	if strings.TrimSpace(req.Question) == "" {
		return Recorded{}, &ValidationError{Reason: "question is required"}
	}
	feedback, err := catalog.ParseFeedback(req.Feedback)
	if err != nil {
		return Recorded{}, &ValidationError{Reason: err.Error()}
	}

	logger := observability.WithTrace(ctx, r.Logger)
	if r.Logs == nil {
		logger.Warn("exploration feedback dropped: no catalog configured")
		return Recorded{}, nil
	}

	log, err := r.Logs.InsertExplorationLog(ctx, catalog.InsertExplorationLogInput{
		UserID:       observability.UserFromContext(ctx),
		ModelExplore: catalog.ModelExplore(model, explore),
		UserInput:    req.Question,
		ModelFields:  req.ModelFields,
		Result:       req.Result,
		Feedback:     feedback,
		TraceID:      observability.TraceIDFromContext(ctx),
	})
	observability.ObserveFeedbackRecord("catalog", observability.Outcome(err))
	if err != nil {
		logger.Error("exploration feedback not stored", "error", err)
		return Recorded{}, nil
	}

	out := Recorded{LogID: log.ID, Stored: true}
	if r.Archiver == nil {
		return out, nil
	}
	key, err := r.Archiver.Archive(ctx, log)
	observability.ObserveFeedbackRecord("archive", observability.Outcome(err))
	if err != nil {
		logger.Warn("exploration feedback not archived", "log_id", log.ID, "error", err)
		return out, nil
	}
	out.ArchivePath = key
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
