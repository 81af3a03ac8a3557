package looker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/askbi/askbi/internal/dashboard"
)

const (
	maxGridRows        = 50
	elementConcurrency = 8
)

type DashboardRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type dashboardElement struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	SubtitleText string `json:"subtitle_text"`
	Type         string `json:"type"`
	QueryID      string `json:"query_id"`
	ResultMaker  *struct {
		QueryID   string `json:"query_id"`
		VisConfig *struct {
			Type                     string `json:"type"`
			LimitDisplayedRowsValues *struct {
				NumRows any `json:"num_rows"`
			} `json:"limit_displayed_rows_values"`
		} `json:"vis_config"`
	} `json:"result_maker"`
}

func (c *Client) ListDashboards(ctx context.Context) ([]DashboardRef, error) {
	var refs []DashboardRef
	if err := c.do(ctx, "GET", "/dashboards?fields=id,title", nil, &refs); err != nil {
		return nil, fmt.Errorf("list dashboards: %w", err)
	}
	return refs, nil
}

// Dashboard loads a dashboard and the data of every visualization tile. Tile
// queries run concurrently; a tile whose query fails is kept with no rows.
func (c *Client) Dashboard(ctx context.Context, id string) (dashboard.Dashboard, error) {
	var parsed struct {
		Title       string             `json:"title"`
		Description string             `json:"description"`
		Elements    []dashboardElement `json:"dashboard_elements"`
	}
	if err := c.do(ctx, "GET", "/dashboards/"+url.PathEscape(id), nil, &parsed); err != nil {
		return dashboard.Dashboard{}, fmt.Errorf("get dashboard %s: %w", id, err)
	}
	if len(parsed.Elements) == 0 {
		return dashboard.Dashboard{}, fmt.Errorf("dashboard %s does not contain any elements", id)
	}

	var visuals []dashboardElement
	for _, element := range parsed.Elements {
		if element.Type == "vis" && element.ResultMaker != nil {
			visuals = append(visuals, element)
		}
	}

	tiles := make([]dashboard.Tile, len(visuals))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(elementConcurrency)
	for i, element := range visuals {
		group.Go(func() error {
			tiles[i] = c.tile(groupCtx, element)
			return nil
		})
	}
	_ = group.Wait()

	return dashboard.Dashboard{
		ID:          id,
		Title:       parsed.Title,
		Description: parsed.Description,
		Tiles:       tiles,
	}, nil
}

func (c *Client) tile(ctx context.Context, element dashboardElement) dashboard.Tile {
	tile := dashboard.Tile{Title: element.Title, Description: element.SubtitleText}
	visType := ""
	if element.ResultMaker.VisConfig != nil {
		visType = element.ResultMaker.VisConfig.Type
	}
	tile.Type = visType

	queryID := element.QueryID
	if queryID == "" {
		queryID = element.ResultMaker.QueryID
	}
	if queryID == "" {
		c.logger.DebugContext(ctx, "dashboard element has no query", slog.String("element_id", element.ID))
		tile.Data = json.RawMessage("[]")
		return tile
	}

	rows, err := c.RunQuery(ctx, queryID)
	if err != nil {
		c.logger.WarnContext(ctx, "dashboard element query failed", slog.String("element", element.Title), slog.Any("error", err))
		tile.Data = json.RawMessage("[]")
		return tile
	}
	rows = trimRows(rows, c.maxCharsPerTile)
	rows = limitDisplayed(rows, element)
	switch visType {
	case "single_value":
		rows = head(rows, 1)
	case "looker_grid":
		rows = head(rows, maxGridRows)
	}

	data, err := json.Marshal(rows)
	if err != nil {
		tile.Data = json.RawMessage("[]")
		return tile
	}
	tile.Data = data
	return tile
}

// trimRows shrinks rows until their JSON fits maxChars, estimating the row
// budget from the average row size with a ten percent margin.
func trimRows(rows []map[string]any, maxChars int) []map[string]any {
	for len(rows) > 0 {
		encoded, err := json.Marshal(rows)
		if err != nil || len(encoded) <= maxChars {
			return rows
		}
		rowSize := float64(len(encoded)) / float64(len(rows))
		keep := int(0.9 * float64(maxChars) / rowSize)
		if keep >= len(rows) {
			keep = len(rows) - 1
		}
		rows = rows[:keep]
	}
	return rows
}

func limitDisplayed(rows []map[string]any, element dashboardElement) []map[string]any {
	vis := element.ResultMaker.VisConfig
	if vis == nil || vis.LimitDisplayedRowsValues == nil || vis.LimitDisplayedRowsValues.NumRows == nil {
		return rows
	}
	limit, err := strconv.Atoi(strings.TrimSpace(fmt.Sprint(vis.LimitDisplayedRowsValues.NumRows)))
	if err != nil || limit < 0 {
		return rows
	}
	return head(rows, limit)
}

func head(rows []map[string]any, n int) []map[string]any {
	if len(rows) > n {
		return rows[:n]
	}
	return rows
}
