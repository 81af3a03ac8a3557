package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/askbi/askbi/internal/catalog"
	"github.com/askbi/askbi/internal/observability"
	"github.com/askbi/askbi/internal/storage"
)

func TestRecordStoresAndArchives(t *testing.T) {
	logs := &fakeLogs{}
	store := &fakeStore{}
	recorder := &Recorder{Logs: logs, Archiver: &Archiver{Store: store, Paths: logs}}

	ctx := observability.ContextWithUser(observability.ContextWithTraceID(context.Background(), "trace-9"), "alice")
	out, err := recorder.Record(ctx, FeedbackRequest{
		Model:       "thelook",
		Explore:     "order_items",
		Question:    "top 10 brands",
		ModelFields: []byte(`["products.brand"]`),
		Result:      "https://looker.example.com/x/abc",
		Feedback:    "UP",
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !out.Stored || out.LogID != 7 {
		t.Fatalf("Record() = %+v", out)
	}
	wantKey := "model_explore=thelook.order_items/date=2026-02-19/hour=10/log-0000000007.parquet"
	if out.ArchivePath != wantKey {
		t.Fatalf("ArchivePath = %q, want %q", out.ArchivePath, wantKey)
	}
	if logs.inserted.UserID != "alice" || logs.inserted.TraceID != "trace-9" {
		t.Fatalf("inserted = %+v", logs.inserted)
	}
	if logs.inserted.ModelExplore != "thelook.order_items" || logs.inserted.Feedback != catalog.FeedbackUp {
		t.Fatalf("inserted = %+v", logs.inserted)
	}
	if logs.archivedID != 7 || logs.archivedPath != wantKey {
		t.Fatalf("archive path recorded = %d/%q", logs.archivedID, logs.archivedPath)
	}
	if store.opts.ContentType != ContentType || store.opts.Metadata["trace-id"] != "trace-9" {
		t.Fatalf("put options = %+v", store.opts)
	}
	if store.size == 0 {
		t.Fatal("expected non-empty archive object")
	}
}

func TestRecordValidatesRequest(t *testing.T) {
	recorder := &Recorder{Logs: &fakeLogs{}}
	cases := []FeedbackRequest{
		{Explore: "order_items", Question: "q"},
		{Model: "thelook", Explore: "order_items"},
		{Model: "thelook", Explore: "order_items", Question: "q", Feedback: "sideways"},
	}
	for _, req := range cases {
		_, err := recorder.Record(context.Background(), req)
		var validation *ValidationError
		if !errors.As(err, &validation) {
			t.Fatalf("Record(%+v) error = %v, want ValidationError", req, err)
		}
	}
}

func TestRecordAbsorbsStorageFailures(t *testing.T) {
	recorder := &Recorder{Logs: &fakeLogs{insertErr: errors.New("db down")}}
	out, err := recorder.Record(context.Background(), FeedbackRequest{Model: "m", Explore: "e", Question: "q"})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if out.Stored {
		t.Fatalf("Record() = %+v, want not stored", out)
	}

	logs := &fakeLogs{}
	recorder = &Recorder{Logs: logs, Archiver: &Archiver{Store: &fakeStore{err: errors.New("s3 down")}, Paths: logs}}
	out, err = recorder.Record(context.Background(), FeedbackRequest{Model: "m", Explore: "e", Question: "q"})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !out.Stored || out.ArchivePath != "" {
		t.Fatalf("Record() = %+v, want stored without archive path", out)
	}
	if logs.archivedID != 0 {
		t.Fatal("archive path must not be recorded after a failed upload")
	}
}

type fakeLogs struct {
	inserted     catalog.InsertExplorationLogInput
	insertErr    error
	archivedID   int64
	archivedPath string
}

func (f *fakeLogs) InsertExplorationLog(_ context.Context, in catalog.InsertExplorationLogInput) (catalog.ExplorationLog, error) {
	if f.insertErr != nil {
		return catalog.ExplorationLog{}, f.insertErr
	}
	f.inserted = in
	return catalog.ExplorationLog{
		ID:           7,
		UserID:       in.UserID,
		ModelExplore: in.ModelExplore,
		UserInput:    in.UserInput,
		ModelFields:  in.ModelFields,
		Result:       in.Result,
		Feedback:     in.Feedback,
		TraceID:      in.TraceID,
		CreatedAt:    time.Date(2026, time.February, 19, 10, 30, 0, 0, time.UTC),
	}, nil
}

func (f *fakeLogs) SetExplorationLogArchivePath(_ context.Context, id int64, path string) error {
	f.archivedID = id
	f.archivedPath = path
	return nil
}

type fakeStore struct {
	err  error
	key  string
	size int64
	opts storage.PutOptions
}

func (f *fakeStore) Put(_ context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	if f.err != nil {
		return storage.ObjectInfo{}, f.err
	}
	_, _ = io.Copy(io.Discard, body)
	f.key, f.size, f.opts = key, size, opts
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

