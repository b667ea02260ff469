package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var purgePattern string

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Purge cache entries matching a pattern",
	Long: `Call the query service's administrative cache purge endpoint.

Patterns use Redis glob syntax, e.g. "facility:*" for every entity entry or
"search:*" for every cached search result. This is an operator tool for mass
corrections; the steady-state flow invalidates entity entries automatically.`,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().StringVar(&purgePattern, "pattern", "", "key pattern to purge (required)")
	_ = purgeCmd.MarkFlagRequired("pattern")
	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, _ []string) error {
	body, err := json.Marshal(map[string]string{"pattern": purgePattern})
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	resp, err := httpClient.Post(cfg.QueryURL+"/admin/v1/cache/purge", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("call purge endpoint: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("purge failed (%s): %s", resp.Status, payload)
	}

	var result struct {
		Purged int `json:"purged"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "purged %d keys matching %q\n", result.Purged, purgePattern)
	return nil
}
