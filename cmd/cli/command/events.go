package command

// events.go = shared helpers for the commands that talk to the TCP event server.

import (
	"context"
	"fmt"
	"io"
	"time"

	"eventcast/internal/microservices/tcp"

	"github.com/fatih/color"
)

var (
	helloColor     = color.New(color.FgCyan)
	heartbeatColor = color.New(color.FgHiBlack)
	unknownColor   = color.New(color.FgYellow)
)

// buildEvent picks the event a command should send: a hello when name is
// set, otherwise a raw event with the given opcode and text payload.
func buildEvent(opcode uint8, payload, helloName string) (tcp.Event, error) {
	if helloName != "" {
		return tcp.NewHelloEvent(helloName)
	}
	return tcp.NewTextEvent(opcode, payload), nil
}

func dial(ctx context.Context, addr string) (*tcp.TCPClient, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	return tcp.Dial(ctx, addr, tcp.WithLogger(cliLogger()))
}

// sendEvents writes ev count times and reports each send on out.
func sendEvents(client *tcp.TCPClient, ev tcp.Event, count int, out io.Writer) error {
	for i := 0; i < count; i++ {
		if err := client.SendEvent(ev); err != nil {
			return fmt.Errorf("send %d of %d: %w", i+1, count, err)
		}
		fmt.Fprintf(out, "sent %s\n", ev)
	}
	return nil
}

// printEvent renders one received event, coloured by its kind.
func printEvent(out io.Writer, ev tcp.Event) {
	stamp := time.Now().Format("15:04:05")
	switch v := tcp.Classify(ev).(type) {
	case tcp.HelloEvent:
		helloColor.Fprintf(out, "[%s] hello from %q\n", stamp, v.Name)
	case tcp.HeartbeatEvent:
		sent := "unknown time"
		if v.SentAt > 0 {
			sent = time.UnixMilli(v.SentAt).Format(time.RFC3339)
		}
		heartbeatColor.Fprintf(out, "[%s] heartbeat sent at %s\n", stamp, sent)
	case tcp.UnknownEvent:
		unknownColor.Fprintf(out, "[%s] opcode=%d %s\n", stamp, v.Code, string(v.Raw))
	}
}

func printStats(out io.Writer, stats tcp.ConnectionStats) {
	fmt.Fprintf(out, "\nconnected at:  %s\n", stats.ConnectedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "uptime:        %s\n", stats.Uptime.Round(time.Second))
	if !stats.LastHeartbeat.IsZero() {
		fmt.Fprintf(out, "last heartbeat: %s\n", stats.LastHeartbeat.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "sent/received: %d/%d\n", stats.MessagesSent, stats.MessagesReceived)
}
