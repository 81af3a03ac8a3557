package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/askbi/askbi/internal/archive"
	"github.com/askbi/askbi/internal/catalog"
	"github.com/askbi/askbi/internal/explore"
	"github.com/askbi/askbi/internal/queryspec"
)

type translateRequest struct {
	Model    string `json:"model"`
	Explore  string `json:"explore"`
	Question string `json:"question"`
}

type translateResponse struct {
	QueryID    string         `json:"query_id"`
	ClientID   string         `json:"client_id"`
	Model      string         `json:"model"`
	View       string         `json:"view"`
	ExploreURL string         `json:"explore_url"`
	Spec       queryspec.Spec `json:"spec"`
}

type answerRequest struct {
	QueryID  string `json:"query_id"`
	Question string `json:"question"`
}

type feedbackRequest struct {
	Model       string          `json:"model"`
	Explore     string          `json:"explore"`
	Question    string          `json:"question"`
	ModelFields json.RawMessage `json:"model_fields,omitempty"`
	Result      string          `json:"result"`
	Feedback    string          `json:"feedback"`
}

type createPromptRequest struct {
	Model       string `json:"model"`
	Explore     string `json:"explore"`
	Description string `json:"description"`
	Prompt      string `json:"prompt"`
}

func handleExploreFields(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Fields == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "FIELDS_NOT_CONFIGURED", "semantic model provider is not configured", false, nil)
		return
	}
	described, err := deps.Fields.Fields(r.Context(), r.PathValue("model"), r.PathValue("explore"))
	if err != nil {
		writePipelineError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, described)
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Translator == nil || deps.Fields == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}
	var req translateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Model = strings.TrimSpace(req.Model)
	req.Explore = strings.TrimSpace(req.Explore)
	if req.Model == "" || req.Explore == "" || strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "model, explore and question are required", false, nil)
		return
	}

	described, err := deps.Fields.Fields(r.Context(), req.Model, req.Explore)
	if err != nil {
		writePipelineError(r.Context(), w, err)
		return
	}
	result, err := deps.Translator.Translate(r.Context(), explore.TranslateRequest{
		Fields:   described.Fields,
		Question: req.Question,
		Model:    req.Model,
		View:     described.View,
	})
	if err != nil {
		writePipelineError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, translateResponse{
		QueryID:    result.QueryID,
		ClientID:   result.ClientID,
		Model:      result.Model,
		View:       result.View,
		ExploreURL: result.ExploreURL(deps.ExploreHost),
		Spec:       result.Spec,
	})
}

func handleAnswer(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Translator == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ANSWER_NOT_CONFIGURED", "explore answers are not configured", false, nil)
		return
	}
	var req answerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.QueryID) == "" || strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "query_id and question are required", false, nil)
		return
	}
	answer, err := deps.Translator.Answer(r.Context(), explore.AnswerRequest{Question: req.Question, QueryID: req.QueryID})
	if err != nil {
		if errors.Is(err, explore.ErrNoAnswer) {
			writeError(r.Context(), w, http.StatusBadGateway, "NO_ANSWER", err.Error(), true, nil)
			return
		}
		writePipelineError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"answer": answer})
}

func handleFeedback(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Feedback == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "FEEDBACK_NOT_CONFIGURED", "feedback logging is not configured", false, nil)
		return
	}
	var req feedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	recorded, err := deps.Feedback.Record(r.Context(), archive.FeedbackRequest{
		Model:       req.Model,
		Explore:     req.Explore,
		Question:    req.Question,
		ModelFields: req.ModelFields,
		Result:      req.Result,
		Feedback:    req.Feedback,
	})
	if err != nil {
		var validation *archive.ValidationError
		if errors.As(err, &validation) {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", validation.Reason, false, nil)
			return
		}
		writePipelineError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, recorded)
}

func handleListPrompts(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Prompts == nil {
		writeJSON(w, http.StatusOK, map[string]any{"prompts": []catalog.PromptExample{}})
		return
	}
	modelExplore := ""
	if model, name := r.URL.Query().Get("model"), r.URL.Query().Get("explore"); model != "" && name != "" {
		modelExplore = catalog.ModelExplore(model, name)
	}
	examples, err := deps.Prompts.ListPromptExamples(r.Context(), modelExplore)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to list prompt examples", true, map[string]any{"details": err.Error()})
		return
	}
	if examples == nil {
		examples = []catalog.PromptExample{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"prompts": examples})
}

func handleCreatePrompt(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Prompts == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CATALOG_NOT_CONFIGURED", "catalog dependency is not configured", false, nil)
		return
	}
	var req createPromptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Model) == "" || strings.TrimSpace(req.Explore) == "" || strings.TrimSpace(req.Prompt) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_REQUEST", "model, explore and prompt are required", false, nil)
		return
	}
	created, err := deps.Prompts.CreatePromptExample(r.Context(), catalog.CreatePromptExampleInput{
		Description:  req.Description,
		Prompt:       req.Prompt,
		ModelExplore: catalog.ModelExplore(strings.TrimSpace(req.Model), strings.TrimSpace(req.Explore)),
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CATALOG_ERROR", "failed to create prompt example", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
