package command

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// heartbeatCmd keeps a connection alive without printing traffic
var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Send periodic heartbeats",
	Long: `Connect to the event server and send a heartbeat event at a fixed interval
until interrupted or the connection fails. Connection stats are printed on exit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := dial(ctx, serverAddr)
		if err != nil {
			return err
		}
		defer client.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "sending heartbeats to %s every %s\n", serverAddr, interval)
		client.StartHeartbeat(ctx, interval)
		printStats(out, client.Stats())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(heartbeatCmd)

	heartbeatCmd.Flags().DurationP("interval", "i", 5*time.Second, "time between heartbeats")
}
