package cmd

import (
	"github.com/spf13/cobra"
)

// Version is reported to the tracing and metrics providers.
var Version = "dev"

var (
	verbose     bool
	debug       bool
	logLevel    string
	configPaths []string
	clientName  string
	busURL      string
	accessToken string
	mockMode    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kiwibus",
	Short: "kiwibus event bus client",
	Long: `kiwibus talks to a kiwibus event bus from the command line.

The connection is configured either with flags (--url, --token) or with
HCL configuration files (--config) defining clients, the access token
and mock responses. With --mock the bus is emulated in-process from the
mock blocks of the configuration.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "debug output, including every request and reply")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringSliceVarP(&configPaths, "config", "c", nil, "configuration files or directories")
	rootCmd.PersistentFlags().StringVar(&clientName, "client", "", "name of the configured client to use (default: the first one)")
	rootCmd.PersistentFlags().StringVar(&busURL, "url", "", "event bus URL, used when no configuration is given")
	rootCmd.PersistentFlags().StringVar(&accessToken, "token", "", "access token, used when no configuration is given")
	rootCmd.PersistentFlags().BoolVar(&mockMode, "mock", false, "emulate the bus in-process")
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}

// GetDebug returns the debug flag value
func GetDebug() bool {
	return debug
}
