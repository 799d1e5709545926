package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newSubmitCmd(opts *rootOptions) *cobra.Command {
	var (
		endpoint string
		tenant   string
		actor    string
		taskType string
		approval bool
	)

	cmd := &cobra.Command{
		Use:   "submit <objective>",
		Short: "Submit a task to a running coordinator",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if endpoint == "" {
				endpoint = "http://localhost" + cfg.Server.Addr
			}

			body, err := json.Marshal(map[string]interface{}{
				"objective":         strings.Join(args, " "),
				"type":              taskType,
				"requires_approval": approval,
			})
			if err != nil {
				return err
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
				endpoint+"/tasks/create", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("x-tenant-id", tenant)
			req.Header.Set("x-actor-id", actor)

			client := &http.Client{Timeout: 30 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("submitting task: %w", err)
			}
			defer func() { _ = resp.Body.Close() }()

			payload, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("coordinator returned %d: %s", resp.StatusCode, payload)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(payload))
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "coordinator base URL")
	cmd.Flags().StringVar(&tenant, "tenant", "local", "tenant identifier")
	cmd.Flags().StringVar(&actor, "actor", "cli", "actor identifier")
	cmd.Flags().StringVar(&taskType, "type", "", "task type (inferred when empty)")
	cmd.Flags().BoolVar(&approval, "require-approval", false, "gate finalization behind human approval")
	return cmd
}
