package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish <address> <action> [body]",
	Short: "Publish a message without waiting for a reply",
	Long: `Publish a message to an address on the event bus.

The body is parsed as JSON when possible and sent as a plain string
otherwise. Publishing is a no-op in mock mode.

Examples:
  kiwibus publish --url wss://portal.example.com/kiwibus deviceservice ping
  kiwibus publish -c kiwibus.hcl deviceservice heartbeat '{"source": "cli"}'`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runPublish,
}

var (
	publishDialTimeout time.Duration
	publishTimeout     time.Duration
)

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().DurationVar(&publishDialTimeout, "dial-timeout", 10*time.Second, "WebSocket dial timeout")
	publishCmd.Flags().DurationVar(&publishTimeout, "timeout", 30*time.Second, "Total operation timeout")
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), publishTimeout)
	defer cancel()

	s, err := connect(ctx, publishDialTimeout)
	if err != nil {
		return err
	}
	defer s.Close()

	msg := buildMessage(args[1], nil, args[2:])
	if err := s.client.Publish(args[0], msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	s.logger.Info("Message published",
		zap.String("address", args[0]),
		zap.String("action", msg.Action),
	)
	return nil
}
