package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Wyydra/duo/internal/core/service"
	"github.com/jedib0t/go-pretty/v6/table"
)

// FetchStats reads the server's /stats endpoint.
func FetchStats(ctx context.Context, client *http.Client, base string) (service.Stats, error) {
	var stats service.Stats

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/stats", nil)
	if err != nil {
		return stats, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch stats: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("stats: unexpected status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return stats, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

func RenderStats(w io.Writer, server string, stats service.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(server)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Connections", stats.Connections},
		{"Waiting", stats.Waiting},
		{"Rooms", stats.Rooms},
	})
	t.SetStyle(table.StyleRounded)
	t.Render()
}
