package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventcast/internal/microservices/tcp"

	"github.com/spf13/cobra"
)

// listenCmd prints every event the server broadcasts
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Listen for broadcast events",
	Long: `Connect to the event server and print each event it sends.

This command will:
1. Connect to the event server
2. Optionally announce itself with a hello event
3. Optionally send heartbeats to keep the connection visible
4. Print incoming events until the server closes the connection

Press Ctrl+C to stop listening and disconnect.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		hello, _ := cmd.Flags().GetString("hello")
		interval, _ := cmd.Flags().GetDuration("heartbeat")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, err := dial(ctx, serverAddr)
		if err != nil {
			return err
		}
		defer client.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "connected to %s\n", serverAddr)
		return runListen(ctx, client, hello, interval, out)
	},
}

// runListen drives one listening session until ctx ends or the server hangs up.
func runListen(ctx context.Context, client *tcp.TCPClient, hello string, interval time.Duration, out io.Writer) error {
	if hello != "" {
		ev, err := tcp.NewHelloEvent(hello)
		if err != nil {
			return err
		}
		if err := client.SendEvent(ev); err != nil {
			return fmt.Errorf("failed to send hello: %w", err)
		}
	}
	if interval > 0 {
		go client.StartHeartbeat(ctx, interval)
	}

	done := make(chan error, 1)
	go func() {
		done <- client.Listen(func(ev tcp.Event) { printEvent(out, ev) })
	}()

	var err error
	select {
	case <-ctx.Done():
		client.Close()
		<-done
	case err = <-done:
		fmt.Fprintln(out, "server closed the connection")
	}

	printStats(out, client.Stats())
	return err
}

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().String("hello", "", "announce this name with a hello event after connecting")
	listenCmd.Flags().Duration("heartbeat", 0, "send a heartbeat at this interval (0 disables)")
}
