package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	errwrap "github.com/pivot-proxy/pivot/internal/errors"
	"github.com/pivot-proxy/pivot/internal/output"
	"github.com/pivot-proxy/pivot/internal/server/handlers"
)

var (
	statusAdminAddr string
	statusOutput    string
)

var statusClient = &http.Client{
	Timeout: 5 * time.Second,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show upstream pool and rate limiter state",
	Long:  "Query the admin API of a running proxy and print the upstream pool and rate limiter state.",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(statusOutput)
		if err != nil {
			return errwrap.NewInvalidInputError(err.Error())
		}

		var upstreams handlers.UpstreamsResponse
		if err := fetchAdminJSON("/api/v1/upstreams", &upstreams); err != nil {
			return fmt.Errorf("failed to query admin API at %s: %w", statusAdminAddr, err)
		}

		var rates handlers.RateLimitResponse
		if err := fetchAdminJSON("/api/v1/ratelimit", &rates); err != nil {
			return fmt.Errorf("failed to query admin API at %s: %w", statusAdminAddr, err)
		}

		rendered, err := output.FormatUpstreams(format, &upstreams)
		if err != nil {
			return err
		}
		fmt.Println(rendered)

		rendered, err = output.FormatRateLimit(format, &rates)
		if err != nil {
			return err
		}
		fmt.Println(rendered)

		return nil
	},
}

func fetchAdminJSON(path string, target any) error {
	resp, err := statusClient.Get("http://" + statusAdminAddr + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("admin API returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(target)
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusAdminAddr, "admin-addr", "127.0.0.1:9120", "admin API address of the running proxy")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "output format (table, json)")
}
