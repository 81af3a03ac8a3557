package semantic

import (
	"fmt"
	"reflect"
	"testing"
)

func makeFields(n int) []FieldMetadata {
	fields := make([]FieldMetadata, 0, n)
	for i := 0; i < n; i++ {
		fields = append(fields, FieldMetadata{Name: fmt.Sprintf("t.f%d", i)})
	}
	return fields
}

func TestChunkEmptyInputYieldsNoChunks(t *testing.T) {
	if got := Chunk(nil, 10); len(got) != 0 {
		t.Fatalf("len(Chunk(nil)) = %d", len(got))
	}
	if got := Chunk([]FieldMetadata{}, 10); len(got) != 0 {
		t.Fatalf("len(Chunk([])) = %d", len(got))
	}
}

func TestChunkCoversInputInOrder(t *testing.T) {
	for _, n := range []int{1, 2, 9, 10, 11, 25, 401} {
		for _, size := range []int{1, 3, 10, 200} {
			fields := makeFields(n)
			chunks := Chunk(fields, size)

			var flattened []FieldMetadata
			for i, chunk := range chunks {
				if len(chunk) == 0 || len(chunk) > size {
					t.Fatalf("n=%d size=%d chunk %d has %d elements", n, size, i, len(chunk))
				}
				if i < len(chunks)-1 && len(chunk) != size {
					t.Fatalf("n=%d size=%d non-final chunk %d has %d elements", n, size, i, len(chunk))
				}
				flattened = append(flattened, chunk...)
			}
			if !reflect.DeepEqual(flattened, fields) {
				t.Fatalf("n=%d size=%d concatenated chunks differ from input", n, size)
			}
		}
	}
}

func TestChunkDefaultsSize(t *testing.T) {
	chunks := Chunk(makeFields(450), 0)
	if len(chunks) != 3 {
		t.Fatalf("len(chunks) = %d, want 3", len(chunks))
	}
	if len(chunks[0]) != DefaultChunkSize {
		t.Fatalf("len(chunks[0]) = %d", len(chunks[0]))
	}
}

func TestChunkAppendDoesNotClobberNextChunk(t *testing.T) {
	fields := makeFields(4)
	chunks := Chunk(fields, 2)
	_ = append(chunks[0], FieldMetadata{Name: "x.y"})
	if chunks[1][0].Name != "t.f2" {
		t.Fatalf("chunks[1][0] = %q", chunks[1][0].Name)
	}
}

func TestFieldNames(t *testing.T) {
	got := FieldNames([]FieldMetadata{{Name: "a.x"}, {Name: "a.y"}})
	if !reflect.DeepEqual(got, []string{"a.x", "a.y"}) {
		t.Fatalf("FieldNames() = %v", got)
	}
}
