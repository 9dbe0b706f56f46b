package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sptcnl/momo/internal/log"
	"github.com/sptcnl/momo/pkg/companion"
	"github.com/sptcnl/momo/pkg/emotion"
	"github.com/sptcnl/momo/pkg/perception"
	"github.com/sptcnl/momo/pkg/reply"
)

func newSayCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "say <text>",
		Short: "Speak text through the configured voices",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			speaker, err := companion.BuildSpeaker(cfg.TTS, log.Component("say"))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Conversation.SpeakTimeout)
			defer cancel()
			return speaker.Speak(ctx, strings.Join(args, " "))
		},
	}
}

func newListenCmd(g *globals) *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Record once and print the transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if window <= 0 {
				window = cfg.Conversation.RecordWindow
			}
			t, err := companion.BuildTranscriber(cfg.STT)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "listening for %s...\n", window)
			ctx, cancel := context.WithTimeout(cmd.Context(), window+cfg.Conversation.STTTimeout)
			defer cancel()
			text, err := t.Transcribe(ctx, window)
			if err != nil {
				return err
			}
			if text == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "(silence)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().DurationVar(&window, "window", 0, "Recording length (default conversation.record_window)")
	return cmd
}

func newAskCmd(g *globals) *cobra.Command {
	var (
		mood     string
		face     bool
		distance float64
	)

	cmd := &cobra.Command{
		Use:   "ask <text>",
		Short: "Run the reply chain once and print the answer",
		Long: `Send one transcript through the configured reply backends, as a
conversation turn would, and print the reply. Nothing is spoken.

Examples:
  momo ask "사랑해"
  momo ask --emotion sad --face --distance 40 "심심해"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label, ok := emotion.Normalize(mood)
			if !ok {
				return fmt.Errorf("unknown emotion %q", mood)
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}
			gen, err := companion.BuildGenerator(cfg, log.Component("ask"))
			if err != nil {
				return err
			}

			snap := perception.Snapshot{FaceDetected: face, FaceCount: boolCount(face)}
			if cmd.Flags().Changed("distance") {
				snap.DistanceCM, snap.HasDistance = distance, true
			}
			req := reply.NewRequest(strings.Join(args, " "), label, snap, time.Now())

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Conversation.ReplyTimeout)
			defer cancel()

			var text string
			if gen != nil && req.Transcript != "" {
				text, err = gen.Reply(ctx, req)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "model failed, using canned reply: %v\n", err)
				}
			}
			if strings.TrimSpace(text) == "" {
				if text, err = companion.BuildFallback(cfg).Reply(ctx, req); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Truncate(text, cfg.Conversation.MaxReplyRunes))
			return nil
		},
	}

	cmd.Flags().StringVar(&mood, "emotion", "neutral", "Facial emotion to report")
	cmd.Flags().BoolVar(&face, "face", false, "Report a face in view")
	cmd.Flags().Float64Var(&distance, "distance", 0, "Report a distance in cm")
	return cmd
}

func boolCount(b bool) int {
	if b {
		return 1
	}
	return 0
}
