package command

// root.go defines the root command for the eventcast CLI.
// global flags live here.

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverAddr  string        // TCP event server address
	apiURL      string        // admin API base URL
	dialTimeout time.Duration // connect timeout for the TCP server
	verbose     bool          // print connection logs to stderr
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "eventcast",
	Short: "eventcast - talk to an event broadcast server",
	Long: `eventcast is a small client for the event broadcast server. Use it to:
- Send raw or well-known events over the framed TCP protocol
- Listen for events broadcast by the server
- Keep a connection alive with periodic heartbeats
- Inspect the server through its admin API

Use "eventcast command --help" to see all available commands.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err) // Print error to standard error
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags = available to all subcommands
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:8081", "event server TCP address")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "http://localhost:8084", "admin API URL")
	rootCmd.PersistentFlags().DurationVar(&dialTimeout, "timeout", 10*time.Second, "connect timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print connection logs")
}

func cliLogger() *slog.Logger {
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
