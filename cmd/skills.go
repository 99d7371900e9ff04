package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/runloop/internal/skills"
)

func skillsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "List and search skills",
	}
	cmd.AddCommand(skillsListCmd())
	cmd.AddCommand(skillsSearchCmd())
	return cmd
}

func loadSkillRegistry() (*skills.Registry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	reg, err := skills.NewRegistry(cfg.SkillRoots...)
	if err != nil {
		return nil, err
	}
	if err := reg.Load(); err != nil {
		return nil, err
	}
	return reg, nil
}

func skillsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all available skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadSkillRegistry()
			if err != nil {
				return err
			}
			all := reg.List()

			if jsonOutput {
				data, _ := json.MarshalIndent(all, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			if len(all) == 0 {
				fmt.Println("No skills found.")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "NAME\tTOOLS\tMODEL\tDESCRIPTION\n")
			for _, sk := range all {
				model := sk.ModelOverride
				if sk.ModelDisabled {
					model = "(disabled)"
				}
				desc := sk.Description
				if len(desc) > 60 {
					desc = desc[:57] + "..."
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", sk.Name, strings.Join(sk.AllowedTools, ","), model, desc)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func skillsSearchCmd() *cobra.Command {
	var scorerName string
	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Score skills against a task description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := loadSkillRegistry()
			if err != nil {
				return err
			}
			all := reg.List()
			query := strings.Join(args, " ")

			var scorer skills.Scorer = skills.OverlapScorer{}
			if scorerName == "bm25" {
				scorer = skills.NewBM25Scorer(all)
			}

			type scored struct {
				skills.Skill
				Score float64 `json:"score"`
			}
			var results []scored
			for _, sk := range all {
				if s := scorer.Score(query, sk); s > 0 {
					results = append(results, scored{Skill: sk, Score: s})
				}
			}
			sort.Slice(results, func(i, j int) bool {
				if results[i].Score != results[j].Score {
					return results[i].Score > results[j].Score
				}
				return results[i].Order < results[j].Order
			})

			if len(results) == 0 {
				fmt.Println("No matching skills.")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "SCORE\tNAME\tDESCRIPTION\n")
			for _, r := range results {
				fmt.Fprintf(tw, "%.2f\t%s\t%s\n", r.Score, r.Name, r.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&scorerName, "scorer", "overlap", "scoring heuristic: overlap or bm25")
	return cmd
}
