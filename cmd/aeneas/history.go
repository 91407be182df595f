package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rschmaelzle/aeneas/internal/database"
)

func newHistoryCommand(global *globalOptions) *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded synthesis runs",
		Example: `aeneas history --limit 5
aeneas history --run 0b9c1c7e-1f0e-4a57-9a1c-8f3c2f0d2a11`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := global.loadConfig()
			if err != nil {
				return err
			}
			if _, err := initLogger(cfg); err != nil {
				return err
			}

			db, err := database.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if runID != "" {
				anchors, err := db.RunAnchors(runID)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "ID\tBEGIN\tEND")
				for _, a := range anchors {
					fmt.Fprintf(w, "%s\t%.3f\t%.3f\n", a.FragmentID, a.BeginSeconds(), a.EndSeconds())
				}
				return w.Flush()
			}

			runs, err := db.ListRuns(limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "RUN\tCREATED\tDURATION\tFRAGMENTS\tEARLY_STOP\tFALLBACKS\tDESTINATION")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%.3f\t%d\t%t\t%d\t%s\n",
					r.ID, r.CreatedAt.Local().Format(time.DateTime), r.TotalDuration.Seconds(),
					r.Fragments, r.EarlyStop, r.Fallbacks, r.Destination)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show (0 = all)")
	cmd.Flags().StringVar(&runID, "run", "", "show the anchors of one run")
	return cmd
}
