package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/careatlas-systems/pulse/common/messaging"
	natsclient "github.com/careatlas-systems/pulse/common/messaging/nats"
)

var tailFacility string

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Tail live facility change events",
	Long: `Subscribe to the pulse event bus and print change events as they
arrive. Without --facility the catch-all channel is tailed.`,
	RunE: runTail,
}

func init() {
	tailCmd.Flags().StringVar(&tailFacility, "facility", "", "tail a single facility's channel")
	rootCmd.AddCommand(tailCmd)
}

func runTail(cmd *cobra.Command, _ []string) error {
	client, err := natsclient.NewClient(natsclient.Config{
		URL:           cfg.NATSURL,
		Name:          "pulsectl-tail",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer client.Close()

	channel := messaging.SubjectFacilityEventsAll
	if tailFacility != "" {
		channel = messaging.FacilityEventSubject(tailFacility)
	}

	sub, err := client.Subscribe(channel, func(_ context.Context, msg *messaging.Message) error {
		var pretty json.RawMessage = msg.Data
		out, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			out = msg.Data
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", msg.Timestamp.Format(time.RFC3339), out)
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", channel, err)
	}
	defer sub.Unsubscribe()

	fmt.Fprintf(cmd.ErrOrStderr(), "tailing %s (ctrl-c to stop)\n", channel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	return nil
}
