package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const statusTimeout = 10 * time.Second

var statusResources = []string{"round", "rounds", "workers", "model", "health"}

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "status [round|rounds|workers|model|health]",
		Short:     "Query a running server's admin API",
		Long:      "Fetch one admin resource and print it as JSON. Defaults to the active round.",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: statusResources,
		Run: func(cmd *cobra.Command, args []string) {
			admin, _ := cmd.Flags().GetString("admin")
			limit, _ := cmd.Flags().GetInt("limit")

			resource := "round"
			if len(args) == 1 {
				resource = args[0]
			}

			url := strings.TrimSuffix(admin, "/") + "/" + resource
			if resource == "rounds" && limit > 0 {
				url = fmt.Sprintf("%s?limit=%d", url, limit)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
			defer cancel()

			body, err := fetchJSON(ctx, url)
			if err != nil {
				logErrorCmd(*cmd, err)
				return
			}

			logJSONCmd(*cmd, body)
		},
	}

	cmd.Flags().StringP("admin", "a", "http://localhost:9998", "Admin API base URL")
	cmd.Flags().IntP("limit", "n", 0, "Most recent rounds to show, 0 shows all")

	return cmd
}

func fetchJSON(ctx context.Context, url string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach admin API '%s': %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("admin API '%s' returned status %s: %s", url, resp.Status, strings.TrimSpace(string(data)))
	}

	var body any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return body, nil
}
