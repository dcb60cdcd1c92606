package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/OrlandoBitencourt/flagcache/internal/logging"
	"github.com/OrlandoBitencourt/flagcache/internal/server"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	addr          string
	webhookSecret string
}

func getServeCmd(g *globalOptions) *cobra.Command {
	s := &serveOptions{}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve cached flags over HTTP as a sidecar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, g, s)
		},
	}

	serveCmd.Flags().StringVar(&s.addr, "addr", server.DefaultConfig().Addr, "listen address")
	serveCmd.Flags().StringVar(&s.webhookSecret, "webhook-secret", os.Getenv("FLAGCACHE_WEBHOOK_SECRET"), "HMAC secret for webhook signatures")

	return serveCmd
}

func runServe(ctx context.Context, cmd *cobra.Command, g *globalOptions, s *serveOptions) error {
	m, release, err := g.newManager(ctx, cmd)
	if err != nil {
		return err
	}
	defer release()

	warmCtx, cancel := context.WithTimeout(ctx, g.timeout)
	m.FetchAllFlags(warmCtx, nil)
	cancel()

	cfg := server.DefaultConfig()
	cfg.Addr = s.addr
	cfg.WebhookSecret = s.webhookSecret

	logger, err := logging.New(logging.Config{Debug: g.debug, Development: true})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return server.New(m, cfg, logging.Component(logger, "server")).ListenAndServe(ctx)
}
