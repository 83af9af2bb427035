package cmd

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tsarna/kiwibus/pkg/kiwibus/devices"
	"github.com/tsarna/kiwibus/pkg/kiwibus/eventbus"
	"go.uber.org/zap"
)

// devicesCmd represents the devices command
var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "Query devices",
	Long: `Query the device service and print the matching devices as JSON.

With --live the command keeps running and prints the changes pushed for
the set until interrupted.

Examples:
  kiwibus devices -c kiwibus.hcl --filter '{"deviceClass": "boiler"}' --limit 10
  kiwibus devices -c kiwibus.hcl --live`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

var (
	devicesDialTimeout time.Duration
	devicesTimeout     time.Duration
	devicesFilter      string
	devicesProjection  string
	devicesSort        string
	devicesOffset      int
	devicesLimit       int
	devicesLive        bool
)

func init() {
	rootCmd.AddCommand(devicesCmd)

	devicesCmd.Flags().DurationVar(&devicesDialTimeout, "dial-timeout", 10*time.Second, "WebSocket dial timeout")
	devicesCmd.Flags().DurationVar(&devicesTimeout, "timeout", 30*time.Second, "query timeout")
	devicesCmd.Flags().StringVar(&devicesFilter, "filter", "", "filter as JSON")
	devicesCmd.Flags().StringVar(&devicesProjection, "project", "", "projection as JSON")
	devicesCmd.Flags().StringVar(&devicesSort, "sort", "", "sort criteria as JSON")
	devicesCmd.Flags().IntVar(&devicesOffset, "offset", devices.DefaultOffset, "index of the first device")
	devicesCmd.Flags().IntVar(&devicesLimit, "limit", devices.DefaultLimit, "maximum number of devices")
	devicesCmd.Flags().BoolVar(&devicesLive, "live", false, "keep printing changes to the set")
}

func runDevices(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := connect(ctx, devicesDialTimeout)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()

	set := devices.NewSet(s.client).
		WithLogger(s.logger).
		Paginate(devicesOffset, devicesLimit)
	if devicesFilter != "" {
		set.Filter(parseValue(devicesFilter))
	}
	if devicesProjection != "" {
		set.Project(parseValue(devicesProjection))
	}
	if devicesSort != "" {
		set.Sort(parseValue(devicesSort))
	}
	if devicesLive {
		set.Live().OnChange(func(result *devices.Result, event eventbus.Event) {
			line, err := json.Marshal(event)
			if err != nil {
				return
			}
			s.logger.Debug("Device set changed", zap.Int("devices", result.Len()))
			out.Write(append(line, '\n'))
		})
	}

	queryCtx, cancel := context.WithTimeout(ctx, devicesTimeout)
	defer cancel()

	result, err := set.Query(queryCtx)
	if err != nil {
		return err
	}
	defer result.Close()

	list := make([]map[string]any, 0, result.Len())
	for _, device := range result.All() {
		list = append(list, device.Properties())
	}
	if err := printJSON(out, list); err != nil {
		return err
	}

	if devicesLive {
		<-ctx.Done()
	}
	return nil
}
