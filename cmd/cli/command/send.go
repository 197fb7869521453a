package command

import (
	"fmt"

	"github.com/spf13/cobra"
)

// sendCmd sends one or more events and disconnects
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send events to the server",
	Long: `Connect to the event server, send an event and disconnect.

Examples:
  eventcast send --opcode 7 --payload "raw text"
  eventcast send --hello alice
  eventcast send --opcode 1 --payload '{"sent_at":0}' --count 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opcode, _ := cmd.Flags().GetUint8("opcode")
		payload, _ := cmd.Flags().GetString("payload")
		hello, _ := cmd.Flags().GetString("hello")
		count, _ := cmd.Flags().GetInt("count")
		if count < 1 {
			return fmt.Errorf("--count must be at least 1")
		}

		ev, err := buildEvent(opcode, payload, hello)
		if err != nil {
			return err
		}

		client, err := dial(cmd.Context(), serverAddr)
		if err != nil {
			return err
		}
		defer client.Close()

		return sendEvents(client, ev, count, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().Uint8P("opcode", "o", 0, "event opcode (0-255)")
	sendCmd.Flags().StringP("payload", "p", "", "event payload as text")
	sendCmd.Flags().String("hello", "", "send a hello event announcing this name (overrides --opcode/--payload)")
	sendCmd.Flags().IntP("count", "n", 1, "number of times to send the event")
}
