package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/askbi/askbi/internal/dashboard"
	"github.com/askbi/askbi/internal/looker"
)

type summarizeRequest struct {
	Question string `json:"question"`
}

func handleListDashboards(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboards == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DASHBOARD_NOT_CONFIGURED", "dashboard source is not configured", false, nil)
		return
	}
	refs, err := deps.Dashboards.ListDashboards(r.Context())
	if err != nil {
		writePipelineError(r.Context(), w, err)
		return
	}
	if refs == nil {
		refs = []looker.DashboardRef{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dashboards": refs})
}

func handleSummarizeDashboard(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboards == nil || deps.Summarizer == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DASHBOARD_NOT_CONFIGURED", "dashboard summarization is not configured", false, nil)
		return
	}
	var req summarizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "question is required", false, nil)
		return
	}

	loaded, err := deps.Dashboards.Dashboard(r.Context(), r.PathValue("id"))
	if err != nil {
		writePipelineError(r.Context(), w, err)
		return
	}
	answer, err := deps.Summarizer.Summarize(r.Context(), loaded, req.Question)
	if err != nil {
		if errors.Is(err, dashboard.ErrNoAnswer) {
			writeError(r.Context(), w, http.StatusBadGateway, "NO_ANSWER", err.Error(), true, nil)
			return
		}
		writePipelineError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answer": answer})
}
