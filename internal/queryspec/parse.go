package queryspec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var errEmptyOutput = errors.New("model returned empty output")

// ParseError reports model output that could not be read as a query specification.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Raw is the unvalidated shape of a model answer. Models answer with either
// "field_names" or "fields"; both are kept until New validates them.
type Raw struct {
	FieldNames []string          `json:"field_names"`
	Fields     []string          `json:"fields,omitempty"`
	Filters    map[string]string `json:"filters"`
	Pivots     []string          `json:"pivots"`
	Sorts      []string          `json:"sorts"`
	Limit      string            `json:"limit,omitempty"`
}

func (r *Raw) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("expected a JSON object")
	}
	var wire struct {
		FieldNames flexStrings     `json:"field_names"`
		Fields     flexStrings     `json:"fields"`
		Filters    json.RawMessage `json:"filters"`
		Pivots     flexStrings     `json:"pivots"`
		Sorts      flexStrings     `json:"sorts"`
		Limit      any             `json:"limit"`
	}
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return err
	}
	*r = Raw{
		FieldNames: wire.FieldNames,
		Fields:     wire.Fields,
		Filters:    decodeFilters(wire.Filters),
		Pivots:     wire.Pivots,
		Sorts:      wire.Sorts,
		Limit:      scalarString(wire.Limit),
	}
	return nil
}

// Parse reads a model answer into a Raw specification. Code fences are
// stripped, surrounding prose is cut away and, as a last resort, the JSON is
// repaired before giving up.
func Parse(text string) (Raw, error) {
	cleaned := StripFence(text)
	if cleaned == "" {
		return Raw{}, &ParseError{Text: text, Err: errEmptyOutput}
	}

	var raw Raw
	firstErr := json.Unmarshal([]byte(cleaned), &raw)
	if firstErr == nil {
		return raw, nil
	}
	if object, ok := extractObject(cleaned); ok && object != cleaned {
		if err := json.Unmarshal([]byte(object), &raw); err == nil {
			return raw, nil
		}
	}
	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return Raw{}, &ParseError{Text: text, Err: firstErr}
	}
	if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
		return Raw{}, &ParseError{Text: text, Err: firstErr}
	}
	return raw, nil
}

// StripFence removes a surrounding markdown code fence such as ```json ... ```.
func StripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	start := strings.Index(trimmed, "```")
	if start < 0 {
		return trimmed
	}
	body := trimmed[start+3:]
	if newline := strings.IndexByte(body, '\n'); newline >= 0 && !strings.ContainsAny(body[:newline], "{[") {
		body = body[newline+1:]
	} else if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = body[4:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func extractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	var values []any
	if err := json.Unmarshal(data, &values); err != nil {
		var single any
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		if value := scalarString(single); value != "" {
			*f = flexStrings{value}
		}
		return nil
	}
	out := make(flexStrings, 0, len(values))
	for _, value := range values {
		if text := scalarString(value); text != "" {
			out = append(out, text)
		}
	}
	*f = out
	return nil
}

func decodeFilters(data json.RawMessage) map[string]string {
	if len(data) == 0 {
		return nil
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil
	}
	filters := make(map[string]string, len(values))
	for key, value := range values {
		if text := scalarString(value); text != "" {
			filters[key] = text
		}
	}
	return filters
}

func scalarString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}
