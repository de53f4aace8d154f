package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// healthRetryInterval is the pause between attempts while --wait is running
const healthRetryInterval = 100 * time.Millisecond

func newHealthCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the grimoire server is up",
		Long: `Query the server's health endpoint.

With --wait the check is retried until the server answers or the wait
runs out, which lets scripts block on a server that is still starting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := checkHealth(cmd.Context(), client, wait)
			if err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(*result)
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "keep retrying for up to this long (e.g. 10s)")
	return cmd
}

// checkHealth polls the health endpoint. Transport failures and 5xx
// answers are retried until wait has elapsed; anything else is final.
func checkHealth(ctx context.Context, cl *Client, wait time.Duration) (*HealthResult, error) {
	deadline := time.Now().Add(wait)

	for attempt := 1; ; attempt++ {
		var result HealthResult
		start := time.Now()
		err := cl.Get(ctx, "/api/v1/health", &result)
		if err == nil {
			result.Server = cl.BaseURL()
			result.Attempts = attempt
			result.LatencyMS = time.Since(start).Milliseconds()
			return &result, nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			return nil, err
		}
		if time.Now().Add(healthRetryInterval).After(deadline) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(healthRetryInterval):
		}
	}
}
