package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"

	"github.com/ShaurayaMohan/TARS-Windscribe/common/httpclient"
	"github.com/ShaurayaMohan/TARS-Windscribe/internal/http/dto"
)

func newTriggerCmd() *cobra.Command {
	var (
		server string
		hours  int
	)

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask a running TARS server to start a run",
		Long: `Start a run on a TARS server over HTTP. The server answers as soon as the
run has started; the report is posted to Slack when it finishes.

Examples:
  tarsctl trigger --server https://tars.internal --hours 12`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return triggerRun(cmd, server, hours)
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "Base URL of the TARS server")
	cmd.Flags().IntVar(&hours, "hours", 24, "Length of the trailing window in hours")

	return cmd
}

func triggerRun(cmd *cobra.Command, server string, hours int) error {
	out := cmd.OutOrStdout()

	body, err := json.Marshal(dto.TriggerRunRequest{Hours: &hours})
	if err != nil {
		return err
	}

	url := strings.TrimRight(server, "/") + "/api/v1/runs"
	req, err := retryablehttp.NewRequestWithContext(cmd.Context(), http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := httpclient.New(httpclient.Config{
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		MinBackoff:  500 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
	})
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("contacting %s: %w", server, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch resp.StatusCode {
	case http.StatusAccepted:
		var started dto.TriggerRunResponse
		if err := json.Unmarshal(raw, &started); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		printSuccess(out, fmt.Sprintf("Run %d started for %s", started.RunID, started.Window))
		return nil
	case http.StatusConflict:
		printWarning(out, "A run is already in progress")
		return fmt.Errorf("server rejected the trigger: already running")
	default:
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
}
