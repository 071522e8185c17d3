// Command pkarrdnsd is the authoritative DNS server and Pkarr HTTP relay.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkarrdns/pkarrdns/internal/log"
	"github.com/spf13/cobra"
)

var logger = log.PrefixedLog("main")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logger.WithError(err).Error("startup failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "pkarrdnsd",
		Short:         "Authoritative DNS server and Pkarr relay for self-certifying node records",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "pkarrdns.toml", "path to the TOML config file")
	return cmd
}
