package looker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestDashboardLoadsVisualTiles(t *testing.T) {
	fake := &fakeLooker{handler: func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/4.0/dashboards/12":
			_, _ = io.WriteString(w, `{
				"title":"Sales","description":"Weekly",
				"dashboard_elements":[
					{"id":"1","title":"Total","type":"vis","query_id":"q1","result_maker":{"vis_config":{"type":"single_value"}}},
					{"id":"2","title":"Notes","type":"text"},
					{"id":"3","title":"By brand","type":"vis","result_maker":{"query_id":"q3","vis_config":{"type":"looker_column","limit_displayed_rows_values":{"num_rows":"2"}}}},
					{"id":"4","title":"Broken","type":"vis","query_id":"q4","result_maker":{}}
				]
			}`)
		case "/api/4.0/queries/q1/run/json":
			_, _ = io.WriteString(w, `[{"total":10},{"total":20}]`)
		case "/api/4.0/queries/q3/run/json":
			_, _ = io.WriteString(w, `[{"b":"x"},{"b":"y"},{"b":"z"}]`)
		case "/api/4.0/queries/q4/run/json":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}}
	client := newTestClient(t, newTestServer(t, fake))

	d, err := client.Dashboard(context.Background(), "12")
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if d.ID != "12" || d.Title != "Sales" || len(d.Tiles) != 3 {
		t.Fatalf("Dashboard = %+v", d)
	}
	if string(d.Tiles[0].Data) != `[{"total":10}]` || d.Tiles[0].Type != "single_value" {
		t.Fatalf("single value tile = %s (%s)", d.Tiles[0].Data, d.Tiles[0].Type)
	}
	if string(d.Tiles[1].Data) != `[{"b":"x"},{"b":"y"}]` {
		t.Fatalf("limited tile = %s", d.Tiles[1].Data)
	}
	if string(d.Tiles[2].Data) != `[]` {
		t.Fatalf("failed tile = %s", d.Tiles[2].Data)
	}
}

func TestDashboardWithoutElementsFails(t *testing.T) {
	fake := &fakeLooker{handler: func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"title":"Empty","dashboard_elements":[]}`)
	}}
	client := newTestClient(t, newTestServer(t, fake))
	if _, err := client.Dashboard(context.Background(), "1"); err == nil {
		t.Fatal("Dashboard() expected error for empty dashboard")
	}
}

func TestListDashboards(t *testing.T) {
	fake := &fakeLooker{handler: func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fields") != "id,title" {
			t.Errorf("fields query = %q", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `[{"id":"1","title":"Sales"},{"id":"2","title":"Ops"}]`)
	}}
	client := newTestClient(t, newTestServer(t, fake))
	refs, err := client.ListDashboards(context.Background())
	if err != nil {
		t.Fatalf("ListDashboards() error = %v", err)
	}
	if len(refs) != 2 || refs[1].Title != "Ops" {
		t.Fatalf("ListDashboards() = %+v", refs)
	}
}

func TestTrimRowsFitsBudget(t *testing.T) {
	rows := make([]map[string]any, 100)
	for i := range rows {
		rows[i] = map[string]any{"name": fmt.Sprintf("row-%03d", i)}
	}
	trimmed := trimRows(rows, 500)
	encoded, _ := json.Marshal(trimmed)
	if len(encoded) > 500 || len(trimmed) == 0 {
		t.Fatalf("trimmed to %d rows, %d chars", len(trimmed), len(encoded))
	}
	if !strings.Contains(string(encoded), "row-000") {
		t.Fatal("trim should keep the leading rows")
	}
	if got := trimRows(rows[:2], 500); len(got) != 2 {
		t.Fatalf("rows within budget should be kept, got %d", len(got))
	}
}
