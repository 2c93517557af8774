package output

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/pivot-proxy/pivot/internal/server/handlers"
)

func renderUpstreamTable(resp *handlers.UpstreamsResponse) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Upstream", "State"})

	for _, u := range resp.Upstreams {
		state := "dead"
		if u.Alive {
			state = "alive"
		}
		t.AppendRow(table.Row{u.Address, state})
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("%d/%d live", resp.Live, resp.Total),
		"",
	})

	return t.Render()
}

func renderRateLimitTable(resp *handlers.RateLimitResponse) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)

	if !resp.Enabled {
		t.AppendHeader(table.Row{"Rate Limiting"})
		t.AppendRow(table.Row{"disabled"})
		return t.Render()
	}

	t.AppendHeader(table.Row{"Client", "Requests This Window"})

	clients := make([]string, 0, len(resp.Clients))
	for client := range resp.Clients {
		clients = append(clients, client)
	}
	sort.Strings(clients)

	for _, client := range clients {
		t.AppendRow(table.Row{client, resp.Clients[client]})
	}

	t.AppendFooter(table.Row{
		"limit",
		fmt.Sprintf("%d/min", resp.MaxRequestsPerMinute),
	})

	return t.Render()
}
