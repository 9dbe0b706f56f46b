package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sptcnl/momo/pkg/companion"
	"github.com/sptcnl/momo/pkg/drive"
)

func newTailCmd(g *globals) *cobra.Command {
	var dur time.Duration

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Wag the tail servo",
		Long: `Center the tail, wag it for --for and park it at neutral again.
Use it to check the servo wiring and the configured wag bounds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			t, err := companion.OpenTail(cfg.Tail)
			if err != nil {
				return err
			}
			defer t.Close()

			t.Controller.Center()
			t.Controller.Start()
			wait(cmd.Context(), dur)
			t.Controller.Stop()

			angle, _ := t.Servo.Angle()
			fmt.Fprintf(cmd.OutOrStdout(), "tail parked at %.0f°\n", angle)
			return nil
		},
	}

	cmd.Flags().DurationVar(&dur, "for", 3*time.Second, "How long to wag")
	return cmd
}

func newDriveCmd(g *globals) *cobra.Command {
	var (
		speed float64
		dur   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "drive <forward|backward|left|right|stop>",
		Short: "Pulse the drive motors",
		Long: `Apply one drive command for --for, then stop and release the motors.
The drive section of the config is used even if drive.enabled is false.

Examples:
  momo drive forward --speed 40 --for 1s
  momo drive left --speed 60 --for 500ms`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"forward", "backward", "left", "right", "stop"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := drive.ParseAction(args[0])
			if err != nil {
				return err
			}
			cfg, err := g.load()
			if err != nil {
				return err
			}
			m, err := companion.OpenDrive(cfg.Drive)
			if err != nil {
				return err
			}
			defer m.Close()

			c := drive.New(action, speed)
			fmt.Fprintf(cmd.OutOrStdout(), "driving %s for %s\n", c, dur)
			m.Drive.Apply(c)
			wait(cmd.Context(), dur)
			m.Drive.Stop()
			return nil
		},
	}

	cmd.Flags().Float64Var(&speed, "speed", 40, "Duty cycle, 0-100")
	cmd.Flags().DurationVar(&dur, "for", time.Second, "How long to drive")
	return cmd
}

func newRangeCmd(g *globals) *cobra.Command {
	var (
		count    int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "range",
		Short: "Read the distance sensor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			r, err := companion.OpenDistance(ctx, cfg.Distance)
			if err != nil {
				return err
			}
			if r == nil {
				return errors.New("no distance sensor configured")
			}
			defer r.Close()

			out := cmd.OutOrStdout()
			return repeat(ctx, count, interval, func(ctx context.Context) {
				d, err := r.DistanceCM(ctx)
				if err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
					return
				}
				fmt.Fprintf(out, "%.1f cm\n", d)
			})
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 5, "Number of readings (0 runs until interrupted)")
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "Time between readings")
	return cmd
}

func newDetectCmd(g *globals) *cobra.Command {
	var (
		count    int
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Count faces in front of the camera",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			camera, err := companion.OpenCamera(cfg.Camera)
			if err != nil {
				return err
			}
			if camera == nil {
				return errors.New("no camera configured")
			}
			defer camera.Close()

			faces, err := companion.OpenFaceDetector(camera, cfg.Face)
			if err != nil {
				return err
			}
			defer faces.Close()

			out := cmd.OutOrStdout()
			return repeat(cmd.Context(), count, interval, func(ctx context.Context) {
				f, err := faces.DetectFaces(ctx)
				if err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
					return
				}
				if off, ok := f.Offset(); ok {
					fmt.Fprintf(out, "%d face(s), largest at offset %+.2f\n", f.Count(), off)
					return
				}
				fmt.Fprintln(out, "no face")
			})
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 5, "Number of detections (0 runs until interrupted)")
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "Time between detections")
	return cmd
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// repeat calls fn count times (forever if count is 0), interval apart.
func repeat(ctx context.Context, count int, interval time.Duration, fn func(context.Context)) error {
	for i := 0; count == 0 || i < count; i++ {
		if i > 0 {
			wait(ctx, interval)
		}
		if ctx.Err() != nil {
			return nil
		}
		fn(ctx)
	}
	return nil
}
