package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// dialTimeout bounds the websocket handshake.
const dialTimeout = 10 * time.Second

func joinCmd() *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:   "join <session-code>",
		Short: "Join a session as a client and stream received frames",
		Long:  "Connects to the relay, joins the given session as a client, and prints every received frame until interrupted (Ctrl+C).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
			defer cancel()

			ws, _, err := websocket.DefaultDialer.DialContext(dialCtx,
				"ws://"+serverAddr+"/ws", nil)
			if err != nil {
				return fmt.Errorf("dial relay: %w", err)
			}
			defer ws.Close()

			join := map[string]any{
				"type": "client:join",
				"payload": map[string]any{
					"sessionId": args[0],
					"label":     label,
				},
			}
			if err := ws.WriteJSON(join); err != nil {
				return fmt.Errorf("send join: %w", err)
			}

			// Close the socket when interrupted so ReadMessage unblocks.
			go func() {
				<-ctx.Done()
				_ = ws.Close()
			}()

			for {
				_, data, err := ws.ReadMessage()
				if err != nil {
					if ctx.Err() != nil || errors.Is(err, websocket.ErrCloseSent) {
						return nil
					}
					if websocket.IsCloseError(err,
						websocket.CloseNormalClosure,
						websocket.CloseGoingAway,
						websocket.CloseServiceRestart,
					) {
						return nil
					}
					return fmt.Errorf("read frame: %w", err)
				}

				out, fmtErr := formatFrame(data, outputFormat)
				if fmtErr != nil {
					return fmt.Errorf("format frame: %w", fmtErr)
				}
				fmt.Println(out)
			}
		},
	}

	cmd.Flags().StringVar(&label, "label", "",
		"display label to join with (default: server-minted)")

	return cmd
}

// formatFrame renders a received frame for the terminal.
func formatFrame(data []byte, format string) (string, error) {
	if format == "json" {
		return string(data), nil
	}

	var m struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("parse frame: %w", err)
	}
	return fmt.Sprintf("%-22s %s", m.Type, string(m.Payload)), nil
}
