package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/runloop/internal/loop"
	"github.com/nextlevelbuilder/runloop/internal/runlog"
	"github.com/nextlevelbuilder/runloop/internal/runstore"
)

func resumeCmd() *cobra.Command {
	var (
		iteration     int
		maxIterations int
	)
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Continue a prior run from one of its snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			res, err := loop.LoadResume(cfg.OutputsDir, args[0], iteration)
			if err != nil {
				return err
			}
			lcfg := res.Config
			if maxIterations > 0 {
				lcfg.MaxIterations = maxIterations
			}
			lcfg.Verbose = flagVerbose

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			runID := runstore.GenNewID()
			tracker, err := runlog.NewTracker(cfg.OutputsDir, runID, 0, flagVerbose)
			if err != nil {
				return err
			}

			l, err := loop.New(runID, lcfg, loop.Deps{
				Skills:   rt.skills,
				Matcher:  rt.matcher,
				Provider: rt.provider,
				Tools:    rt.tools,
				Store:    rt.store,
				Tracker:  tracker,
			})
			if err != nil {
				return err
			}

			status, err := l.Resume(ctx, res)
			if err != nil {
				return err
			}

			exportRunTelemetry(context.Background(), cfg, runID, string(status), tracker.Dir().EventsPath())
			printOutcome(runID, status, tracker.Dir().ReportPath())
			return nil
		},
	}
	cmd.Flags().IntVar(&iteration, "iteration", 0, "snapshot iteration to resume from (default latest)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "override the replayed iteration limit")
	return cmd
}
