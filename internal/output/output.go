// Package output renders admin API responses for the CLI.
package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pivot-proxy/pivot/internal/server/handlers"
)

// Format represents an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// FormatUpstreams renders the upstream pool state in the requested format.
func FormatUpstreams(format Format, resp *handlers.UpstreamsResponse) (string, error) {
	if resp == nil {
		return "", nil
	}

	if format == FormatJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	return renderUpstreamTable(resp), nil
}

// FormatRateLimit renders the rate limiter state in the requested format.
func FormatRateLimit(format Format, resp *handlers.RateLimitResponse) (string, error) {
	if resp == nil {
		return "", nil
	}

	if format == FormatJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	return renderRateLimitTable(resp), nil
}
