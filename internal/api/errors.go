package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/askbi/askbi/internal/dashboard"
	"github.com/askbi/askbi/internal/llm"
	"github.com/askbi/askbi/internal/looker"
)

// writePipelineError maps translation, answer and summarization failures to
// the error envelope.
func writePipelineError(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		creationErr  *llm.QueryCreationError
		parseErr     *dashboard.SummarizationParseError
		transportErr *llm.TransportError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusGatewayTimeout, "TIMEOUT", err.Error(), true, nil)
	case errors.As(err, &creationErr):
		writeError(ctx, w, http.StatusBadGateway, "QUERY_CREATION_FAILED", creationErr.Error(), false, map[string]any{"reason": creationErr.Reason})
	case errors.As(err, &parseErr):
		writeError(ctx, w, http.StatusBadGateway, "SUMMARIZATION_FAILED", parseErr.Error(), false, map[string]any{"tile": parseErr.Tile, "status": parseErr.Status})
	case errors.As(err, &transportErr):
		writeError(ctx, w, http.StatusBadGateway, "LLM_UNAVAILABLE", transportErr.Error(), true, map[string]any{"op": transportErr.Op})
	case looker.IsNotFound(err):
		writeError(ctx, w, http.StatusNotFound, "NOT_FOUND", err.Error(), false, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", err.Error(), false, nil)
	}
}
