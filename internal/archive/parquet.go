package archive

import (
	"bytes"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"github.com/askbi/askbi/internal/catalog"
)

const ContentType = "application/vnd.apache.parquet"

type EncodeResult struct {
	Data        []byte
	RecordCount int64
}

type parquetLog struct {
	LogID           int64  `parquet:"log_id"`
	UserID          string `parquet:"user_id"`
	ModelExplore    string `parquet:"model_explore"`
	UserInput       string `parquet:"user_input"`
	ModelFieldsJSON string `parquet:"model_fields_json"`
	Result          string `parquet:"result"`
	Feedback        string `parquet:"feedback"`
	TraceID         string `parquet:"trace_id"`
	CreatedAtUnixMs int64  `parquet:"created_at_unix_ms"`
}

// EncodeExplorationLogs writes logs as a single parquet file.
func EncodeExplorationLogs(logs []catalog.ExplorationLog) (EncodeResult, error) {
	if len(logs) == 0 {
		return EncodeResult{}, fmt.Errorf("exploration logs are required")
	}

	rows := make([]parquetLog, 0, len(logs))
	for _, log := range logs {
		if log.ID <= 0 {
			return EncodeResult{}, fmt.Errorf("invalid exploration log id %d", log.ID)
		}
		rows = append(rows, parquetLog{
			LogID:           log.ID,
			UserID:          log.UserID,
			ModelExplore:    log.ModelExplore,
			UserInput:       log.UserInput,
			ModelFieldsJSON: string(log.ModelFields),
			Result:          log.Result,
			Feedback:        string(log.Feedback),
			TraceID:         log.TraceID,
			CreatedAtUnixMs: log.CreatedAt.UTC().UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetLog](buf)
	if _, err := writer.Write(rows); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return EncodeResult{Data: buf.Bytes(), RecordCount: int64(len(rows))}, nil
}
