// labeldash - label printing dashboard over MQTT
//
// labeldash keeps one MQTT session to the site broker, follows printer and
// delivery status, and publishes print jobs for the printer listener.
//
// Commands:
//
//	labeldash serve                 run the session, HTTP API and dashboard
//	labeldash print --item k=v:text send one print job and exit
//	labeldash watch                 follow the session in the terminal
//	labeldash jobs list|prune       inspect the local job history
//	labeldash version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(viper.New()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Flags are bound into v, which also
// reads LABELDASH_CONFIG and LABELDASH_LOG_LEVEL from the environment.
func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "labeldash",
		Short:         "Label printing dashboard over MQTT",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	v.SetEnvPrefix("LABELDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default "+defaultConfigPath+")")
	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.PersistentFlags().String("log-level", "", "override logging.level (debug, info, warn, error)")
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(newServeCmd(v))
	rootCmd.AddCommand(newPrintCmd(v))
	rootCmd.AddCommand(newWatchCmd(v))
	rootCmd.AddCommand(newJobsCmd(v))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
