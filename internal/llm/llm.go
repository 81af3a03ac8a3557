package llm

import (
	"context"
	"fmt"

	"github.com/askbi/askbi/internal/queryspec"
)

// MissingResultStatus marks a prompt the transport returned no answer for.
const MissingResultStatus = "no result returned for prompt"

// Row is one model answer. A non-empty Status reports a model-side failure.
type Row struct {
	Text   string
	Status string
}

func (r Row) Failed() bool {
	return r.Status != ""
}

// Generator sends prompts to the hosted model. Implementations return exactly
// one Row per prompt, in prompt order, using a single round trip.
type Generator interface {
	Generate(ctx context.Context, kind string, prompts []string) ([]Row, error)
}

type QueryRequest struct {
	Model string
	View  string
	Spec  queryspec.Spec
}

type QueryRef struct {
	QueryID  string
	ClientID string
	Model    string
	View     string
}

type QueryCreator interface {
	CreateQuery(ctx context.Context, req QueryRequest) (QueryRef, error)
}

// Bridge is the transport to the black-box model plus the query service.
type Bridge interface {
	Generator
	QueryCreator
}

type bridge struct {
	Generator
	QueryCreator
}

func NewBridge(generator Generator, creator QueryCreator) Bridge {
	return bridge{Generator: generator, QueryCreator: creator}
}

// TransportError reports that the remote call itself failed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// QueryCreationError reports that the query service rejected the final query.
type QueryCreationError struct {
	Reason string
	Err    error
}

func (e *QueryCreationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("create query: %s: %v", e.Reason, e.Err)
	}
	return "create query: " + e.Reason
}

func (e *QueryCreationError) Unwrap() error {
	return e.Err
}
