package main

import (
	"github.com/spf13/cobra"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/internal/telemetry"
	"github.com/sptcnl/momo/pkg/companion"
	"github.com/sptcnl/momo/pkg/web"
)

func newServeAICmd(g *globals) *cobra.Command {
	var (
		addr  string
		speak bool
	)

	cmd := &cobra.Command{
		Use:   "serve-ai",
		Short: "Serve replies to a robot over HTTP",
		Long: `Serve POST /api/chat for robots configured with the "remote" reply backend.
The reply chain from the config answers each request. When a request
carries no emotion the configured classifier fills one in.

Examples:
  momo serve-ai --addr :8000
  momo serve-ai --speak`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Web.Addr
			}

			ctx := cmd.Context()
			shutdown, err := telemetry.Init(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName, version, cfg.Telemetry.Insecure)
			if err != nil {
				return err
			}
			defer flush(shutdown)

			logger := log.Component("serve-ai")
			generator, err := companion.BuildGenerator(cfg, logger)
			if err != nil {
				return err
			}
			if generator == nil {
				generator = companion.BuildFallback(cfg)
			}
			// No camera here; only the random and command classifiers work.
			classifier, err := companion.BuildClassifier(cfg.Emotion, nil, nil)
			if err != nil {
				return err
			}

			opts := []web.Option{
				web.WithGenerator(generator),
				web.WithClassifier(classifier),
				web.WithReplyTimeout(cfg.Conversation.ReplyTimeout),
			}
			if speak {
				speaker, err := companion.BuildSpeaker(cfg.TTS, logger)
				if err != nil {
					return err
				}
				opts = append(opts, web.WithSpeaker(speaker))
			}

			return web.NewServer(addr, opts...).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default web.addr)")
	cmd.Flags().BoolVar(&speak, "speak", false, "Also speak every reply on this machine")

	return cmd
}
