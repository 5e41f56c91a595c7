package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// healthTimeout bounds the health probe round trip.
const healthTimeout = 5 * time.Second

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe the relay health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet,
				"http://"+serverAddr+"/health", nil)
			if err != nil {
				return fmt.Errorf("build health request: %w", err)
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("probe health: %w", err)
			}
			defer resp.Body.Close()

			var body struct {
				OK        bool  `json:"ok"`
				Sessions  int   `json:"sessions"`
				Timestamp int64 `json:"timestamp"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("decode health response: %w", err)
			}

			if outputFormat == "json" {
				out, err := json.Marshal(body)
				if err != nil {
					return fmt.Errorf("marshal health output: %w", err)
				}
				fmt.Println(string(out))
				return nil
			}

			fmt.Printf("ok: %v\nsessions: %d\ntimestamp: %s\n",
				body.OK, body.Sessions,
				time.UnixMilli(body.Timestamp).Format(time.RFC3339))
			return nil
		},
	}
}
