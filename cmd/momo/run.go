package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sptcnl/momo/internal/config"
	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/internal/telemetry"
	"github.com/sptcnl/momo/pkg/companion"
	"github.com/sptcnl/momo/pkg/conversation"
	"github.com/sptcnl/momo/pkg/web"
)

func newRunCmd(g *globals) *cobra.Command {
	var (
		noConversation bool
		noWeb          bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the companion",
		Long: `Run perception polling, the tail and approach reactions and back-to-back
conversation turns until interrupted. The dashboard is served on web.addr
unless --no-web is given.

On Ctrl-C the motors stop first, then perception closes and the tail servo
is parked before the pins are released.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			return runCompanion(cmd.Context(), cfg, noConversation, noWeb)
		},
	}

	cmd.Flags().BoolVar(&noConversation, "no-conversation", false, "Run perception and reactions only")
	cmd.Flags().BoolVar(&noWeb, "no-web", false, "Do not serve the dashboard")

	return cmd
}

func runCompanion(ctx context.Context, cfg config.Config, noConversation, noWeb bool) error {
	logger := log.Component("main")

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName, version, cfg.Telemetry.Insecure)
	if err != nil {
		return err
	}
	defer flush(shutdown)

	metrics, err := telemetry.NewMetrics(telemetry.Meter("github.com/sptcnl/momo"))
	if err != nil {
		return err
	}

	// srv is set before anything runs, so turns never see it nil mid-run.
	var srv *web.Server
	app, err := companion.Build(ctx, cfg, companion.Options{
		Metrics:        metrics,
		NoConversation: noConversation,
		OnTurn: func(t conversation.Turn) {
			if srv != nil {
				srv.PublishTurn(t)
			}
		},
	})
	if err != nil {
		return err
	}

	if noWeb || cfg.Web.Addr == "" {
		return app.Run(ctx)
	}

	srv = web.NewServer(cfg.Web.Addr, web.WithSnapshots(app.Slot()))
	snaps := app.Poller().Subscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		// The robot stopping ends the dashboard too.
		defer cancel()
		return app.Run(gctx)
	})
	grp.Go(func() error {
		return srv.Run(gctx)
	})
	grp.Go(func() error {
		return srv.Watch(gctx, snaps)
	})

	err = grp.Wait()
	logger.Info("momo stopped", "error", err)
	return err
}

func flush(shutdown telemetry.Shutdown) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn("telemetry shutdown", "error", err)
	}
}
