package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"eventcast/internal/microservices/admin"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// adminClient talks to the server's admin API
type adminClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAdminClient(baseURL string) *adminClient {
	return &adminClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *adminClient) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("admin API returned %d: %s", resp.StatusCode, apiErr.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *adminClient) Connections(ctx context.Context) (*admin.ConnectionsResponse, error) {
	var resp admin.ConnectionsResponse
	if err := c.do(ctx, http.MethodGet, "/connections", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *adminClient) Broadcast(ctx context.Context, opcode uint8, payload string) (*admin.BroadcastResponse, error) {
	var resp admin.BroadcastResponse
	req := admin.BroadcastRequest{Opcode: &opcode, Payload: payload}
	if err := c.do(ctx, http.MethodPost, "/broadcast", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// connectionsCmd lists the peers registered on the server
var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "List connections registered on the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newAdminClient(apiURL).Connections(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d connection(s)\n", resp.Count)
		for _, id := range resp.IDs {
			fmt.Fprintf(out, "  %s\n", id)
		}
		return nil
	},
}

// broadcastCmd asks the server to broadcast an event to every peer
var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Broadcast an event to all connections through the admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		opcode, _ := cmd.Flags().GetUint8("opcode")
		payload, _ := cmd.Flags().GetString("payload")

		resp, err := newAdminClient(apiURL).Broadcast(cmd.Context(), opcode, payload)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "attempted %d, failed %d\n", resp.Attempted, resp.Failed)
		for _, e := range resp.Errors {
			color.New(color.FgRed).Fprintf(out, "  %s\n", e)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(connectionsCmd)
	rootCmd.AddCommand(broadcastCmd)

	broadcastCmd.Flags().Uint8P("opcode", "o", 0, "event opcode (0-255)")
	broadcastCmd.Flags().StringP("payload", "p", "", "event payload as text")
}
