package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/kiwibus/pkg/kiwibus/eventbus"
	"github.com/tsarna/kiwibus/pkg/kiwibus/handlerutils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// listenCmd represents the listen command
var listenCmd = &cobra.Command{
	Use:   "listen <address>...",
	Short: "Print events pushed to addresses",
	Long: `Register a handler for each address and print every event pushed to it
as one JSON line, until interrupted.

In mock mode, --action selects the mocked actions whose synthesized
events are delivered to the handlers.

Examples:
  kiwibus listen --url wss://portal.example.com/kiwibus CLIENT_1234
  kiwibus listen -c mocks.hcl --mock --action createDevice --action deleteDevice watcher`,
	Args: cobra.MinimumNArgs(1),
	RunE: runListen,
}

var (
	listenDialTimeout time.Duration
	listenQueueSize   int
	listenActions     []string
)

func init() {
	rootCmd.AddCommand(listenCmd)

	listenCmd.Flags().DurationVar(&listenDialTimeout, "dial-timeout", 10*time.Second, "WebSocket dial timeout")
	listenCmd.Flags().IntVar(&listenQueueSize, "queue-size", 100, "events buffered before new ones are dropped")
	listenCmd.Flags().StringSliceVar(&listenActions, "action", nil, "mocked actions to receive events for (mock mode only)")
}

func runListen(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := connect(ctx, listenDialTimeout)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	printer := func(event eventbus.Event) {
		line, err := json.Marshal(event)
		if err != nil {
			s.logger.Warn("Failed to encode event", zap.Error(err))
			return
		}
		fmt.Fprintln(out, string(line))
	}

	async := handlerutils.NewAsyncHandler(printer, listenQueueSize).
		WithDropHandler(func(event eventbus.Event, err error) {
			s.logger.Warn("Event dropped", zap.String("type", string(event.Type)), zap.Error(err))
		}).
		Start()
	defer async.Close()

	for _, address := range args {
		logging := handlerutils.NewNamedLoggingHandler(async.Handler(), s.logger.With(zap.String("address", address)), zapcore.DebugLevel, "listen")
		if !s.client.RegisterBusHandler(address, logging.Handler(), listenActions...) {
			return fmt.Errorf("failed to register handler for %s", address)
		}
		s.logger.Info("Listening", zap.String("address", address))
	}

	<-ctx.Done()
	return nil
}
