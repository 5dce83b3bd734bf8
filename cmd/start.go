// Copyright © 2019 Andrei Gubarev <agubarev@protonmail.com>

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/agubarev/aegis/internal/core"
	"github.com/agubarev/aegis/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the main Aegis server.",
	Long:  ``,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		logger, err := core.BuildLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		c, err := core.New(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to build the core", zap.Error(err))
			return err
		}
		defer c.Close()

		if err = c.Init(ctx); err != nil {
			logger.Error("failed to initialize the core", zap.Error(err))
			return err
		}

		return server.Run(ctx, c, cfg.Server.Addr, server.Options{
			CORSOrigins: cfg.Server.CORSOrigins,
		})
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
