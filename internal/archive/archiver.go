package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/askbi/askbi/internal/catalog"
	"github.com/askbi/askbi/internal/storage"
)

// PathRecorder stores where an exploration log was archived.
type PathRecorder interface {
	SetExplorationLogArchivePath(ctx context.Context, id int64, path string) error
}

// Archiver copies exploration logs to object storage as parquet files.
type Archiver struct {
	Store  storage.ObjectStore
	Paths  PathRecorder
	Logger *slog.Logger
}

// Archive uploads one log and records its object key in the catalog.
func (a *Archiver) Archive(ctx context.Context, log catalog.ExplorationLog) (string, error) {
	if a.Store == nil {
		return "", fmt.Errorf("object store is required")
	}
	key, err := storage.BuildFeedbackArchivePath(log.ModelExplore, log.CreatedAt, log.ID)
	if err != nil {
		return "", err
	}
	encoded, err := EncodeExplorationLogs([]catalog.ExplorationLog{log})
	if err != nil {
		return "", fmt.Errorf("encode exploration log %d: %w", log.ID, err)
	}

	metadata := map[string]string{"log-id": strconv.FormatInt(log.ID, 10)}
	if log.TraceID != "" {
		metadata["trace-id"] = log.TraceID
	}
	if _, err := a.Store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{
		ContentType: ContentType,
		Metadata:    metadata,
	}); err != nil {
		return "", fmt.Errorf("upload exploration log %d: %w", log.ID, err)
	}

	if a.Paths != nil {
		if err := a.Paths.SetExplorationLogArchivePath(ctx, log.ID, key); err != nil {
			return key, fmt.Errorf("record archive path for log %d: %w", log.ID, err)
		}
	}
	a.logger().Debug("exploration log archived", "log_id", log.ID, "key", key, "bytes", len(encoded.Data))
	return key, nil
}

func (a *Archiver) logger() *slog.Logger {
	if a.Logger == nil {
		return discardLogger()
	}
	return a.Logger
}
