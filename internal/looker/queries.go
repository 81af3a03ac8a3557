package looker

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/askbi/askbi/internal/llm"
)

type writeQuery struct {
	Model   string            `json:"model"`
	View    string            `json:"view"`
	Fields  []string          `json:"fields"`
	Filters map[string]string `json:"filters,omitempty"`
	Pivots  []string          `json:"pivots,omitempty"`
	Sorts   []string          `json:"sorts,omitempty"`
	Limit   string            `json:"limit,omitempty"`
}

// CreateQuery registers the query spec on the platform. Any rejection is a
// QueryCreationError.
func (c *Client) CreateQuery(ctx context.Context, req llm.QueryRequest) (llm.QueryRef, error) {
	body := writeQuery{
		Model:   req.Model,
		View:    req.View,
		Fields:  req.Spec.Fields,
		Filters: req.Spec.Filters,
		Pivots:  req.Spec.Pivots,
		Sorts:   req.Spec.Sorts,
		Limit:   req.Spec.Limit,
	}
	if body.Fields == nil {
		body.Fields = []string{}
	}

	var created struct {
		ID       string `json:"id"`
		ClientID string `json:"client_id"`
		Model    string `json:"model"`
		View     string `json:"view"`
	}
	if err := c.do(ctx, "POST", "/queries", body, &created); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			return llm.QueryRef{}, &llm.QueryCreationError{Reason: fmt.Sprintf("query rejected with status %d", apiErr.Status), Err: err}
		}
		return llm.QueryRef{}, &llm.QueryCreationError{Reason: "query service unreachable", Err: err}
	}
	if created.ID == "" {
		return llm.QueryRef{}, &llm.QueryCreationError{Reason: "query service returned no id"}
	}

	ref := llm.QueryRef{QueryID: created.ID, ClientID: created.ClientID, Model: created.Model, View: created.View}
	if ref.Model == "" {
		ref.Model = req.Model
	}
	if ref.View == "" {
		ref.View = req.View
	}
	return ref, nil
}

// RunQuery runs a saved query and returns its rows keyed by field name.
func (c *Client) RunQuery(ctx context.Context, queryID string) ([]map[string]any, error) {
	var rows []map[string]any
	if err := c.do(ctx, "GET", "/queries/"+url.PathEscape(queryID)+"/run/json", nil, &rows); err != nil {
		return nil, fmt.Errorf("run query %s: %w", queryID, err)
	}
	return rows, nil
}
