package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/runloop/internal/runlog"
	"github.com/nextlevelbuilder/runloop/internal/runstore"
)

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}
	cmd.AddCommand(runsListCmd())
	cmd.AddCommand(runsShowCmd())
	return cmd
}

func runsListCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := runstore.Open(cfg.Store.PostgresDSN, cfg.Store.SQLitePath)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(runs, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tSTATUS\tITER\tCREATED\tTASK\n")
			for _, r := range runs {
				task := r.Task
				if len(task) > 48 {
					task = task[:45] + "..."
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
					r.ID, r.Status, r.Iterations, r.CreatedAt.Local().Format(time.DateTime), task)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func runsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run's record and event summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := runstore.Open(cfg.Store.PostgresDSN, cfg.Store.SQLitePath)
			if err != nil {
				return err
			}
			defer store.Close()

			rec, ok, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("run %s not found", args[0])
			}

			out := map[string]interface{}{"run": rec}
			if dir, err := runlog.OpenRunDir(cfg.OutputsDir, rec.ID); err == nil {
				if idx, err := runlog.ReadIndex(dir.IndexPath()); err == nil {
					out["index"] = idx
				}
			}
			data, _ := json.MarshalIndent(out, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
	return cmd
}
