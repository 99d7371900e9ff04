package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/runloop/internal/loop"
	"github.com/nextlevelbuilder/runloop/internal/runlog"
	"github.com/nextlevelbuilder/runloop/internal/runstore"
)

func runCmd() *cobra.Command {
	var (
		maxIterations int
		stopExpr      string
	)
	cmd := &cobra.Command{
		Use:   "run <task...>",
		Short: "Run a task to a terminal status",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			lcfg := cfg.Loop
			if maxIterations > 0 {
				lcfg.MaxIterations = maxIterations
			}
			if stopExpr != "" {
				lcfg.StopExpression = stopExpr
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

			task := strings.Join(args, " ")
			status, err := l.Run(ctx, task)
			if err != nil {
				return err
			}

			exportRunTelemetry(context.Background(), cfg, runID, string(status), tracker.Dir().EventsPath())
			printOutcome(runID, status, tracker.Dir().ReportPath())
			return nil
		},
	}
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "override the iteration limit")
	cmd.Flags().StringVar(&stopExpr, "stop", "", "CEL stop condition over the latest context block")
	return cmd
}

func printOutcome(runID string, status loop.Status, reportPath string) {
	fmt.Printf("run:    %s\n", runID)
	fmt.Printf("status: %s\n", status)
	if _, err := os.Stat(reportPath); err == nil {
		fmt.Printf("report: %s\n", reportPath)
	}
}
