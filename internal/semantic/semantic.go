package semantic

import "context"

// DefaultChunkSize bounds how many fields are serialized into one extraction prompt.
const DefaultChunkSize = 200

type FieldMetadata struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Type        string `json:"type,omitempty"`
}

type Explore struct {
	Model  string          `json:"model"`
	Name   string          `json:"name"`
	View   string          `json:"view"`
	Fields []FieldMetadata `json:"fields"`
}

// Provider resolves the queryable field dictionary of a model explore.
type Provider interface {
	Fields(ctx context.Context, model, explore string) (Explore, error)
}

func FieldNames(fields []FieldMetadata) []string {
	names := make([]string, 0, len(fields))
	for _, field := range fields {
		names = append(names, field.Name)
	}
	return names
}

// Chunk splits fields into contiguous groups of at most size elements.
// An empty input yields no groups.
func Chunk(fields []FieldMetadata, size int) [][]FieldMetadata {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(fields) == 0 {
		return nil
	}
	chunks := make([][]FieldMetadata, 0, (len(fields)+size-1)/size)
	for start := 0; start < len(fields); start += size {
		end := start + size
		if end > len(fields) {
			end = len(fields)
		}
		chunks = append(chunks, fields[start:end:end])
	}
	return chunks
}
