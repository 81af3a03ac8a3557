package dashboard

import (
	"encoding/json"
	"fmt"
)

const (
	DefaultMaxCharsPerPrompt = 54000
	DefaultMaxCharsPerTile   = 54000
	DefaultMinSummarizeChars = 24000
	DefaultConcurrency       = 4
)

// Dashboard is the payload handed to the model: the dashboard header plus the
// data of every visualization tile.
type Dashboard struct {
	ID          string `json:"-"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Tiles       []Tile `json:"elements"`
}

type Tile struct {
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Type        string          `json:"type,omitempty"`
	Data        json.RawMessage `json:"data"`
}

func (t Tile) size() int {
	if len(t.Data) == 0 {
		return len("null")
	}
	return len(t.Data)
}

// SummarizationParseError reports a tile whose summary came back empty or failed.
type SummarizationParseError struct {
	Tile   string
	Status string
	Err    error
}

func (e *SummarizationParseError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("summarize tile %q: %v", e.Tile, e.Err)
	case e.Status != "":
		return fmt.Sprintf("summarize tile %q: model status: %s", e.Tile, e.Status)
	default:
		return fmt.Sprintf("summarize tile %q: empty summary", e.Tile)
	}
}

func (e *SummarizationParseError) Unwrap() error {
	return e.Err
}
