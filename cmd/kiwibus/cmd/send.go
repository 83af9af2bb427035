package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/kiwibus/pkg/kiwibus/eventbus"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <address> <action> [params] [body]",
	Short: "Send a request and print the reply",
	Long: `Send a request to an address on the event bus and print the reply as JSON.

Params and body are parsed as JSON when possible and sent as plain
strings otherwise. The command fails if the reply code is not 200.

Examples:
  kiwibus send --url wss://portal.example.com/kiwibus --token "$TOKEN" deviceservice getDevices '{"limit": 10}'
  kiwibus send -c kiwibus.hcl deviceservice getDevice '"d1"'
  kiwibus send -c mocks.hcl --mock deviceservice getDevices`,
	Args: cobra.RangeArgs(2, 4),
	RunE: runSend,
}

var (
	sendDialTimeout time.Duration
	sendTimeout     time.Duration
)

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().DurationVar(&sendDialTimeout, "dial-timeout", 10*time.Second, "WebSocket dial timeout")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "Total operation timeout")
}

func buildMessage(action string, params, body []string) eventbus.Message {
	msg := eventbus.Message{Action: action}
	if len(params) > 0 {
		msg.Params = parseValue(params[0])
	}
	if len(body) > 0 {
		msg.Body = parseValue(body[0])
	}
	return msg
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
	defer cancel()

	s, err := connect(ctx, sendDialTimeout)
	if err != nil {
		return err
	}
	defer s.Close()

	msg := buildMessage(args[1], args[2:min(len(args), 3)], args[min(len(args), 3):])

	reply, err := s.client.Request(ctx, args[0], msg)
	if err != nil {
		return fmt.Errorf("no reply: %w", err)
	}

	if err := printJSON(cmd.OutOrStdout(), reply); err != nil {
		return err
	}

	return reply.Err()
}
