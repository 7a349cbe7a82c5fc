package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"homesite/internal/database"
	"homesite/internal/visits"
)

var visitsRecent int

var visitsCmd = &cobra.Command{
	Use:   "visits",
	Short: "Show visit counts per path",
	Long: `Show how often each path was visited.

With --recent N, list the N latest visits instead.`,
	Args: cobra.NoArgs,
	RunE: runVisits,
}

func init() {
	visitsCmd.Flags().IntVar(&visitsRecent, "recent", 0, "List the latest N visits instead of counts")
}

func runVisits(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	store := visits.NewStore(db)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	if visitsRecent > 0 {
		recent, err := store.RecentVisits(ctx, visitsRecent)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "TIME\tVISITOR\tPATH")
		for _, v := range recent {
			fmt.Fprintf(w, "%s\t%s\t%s\n", v.Instance, v.Visitor, v.Path)
		}
		return w.Flush()
	}

	counts, err := store.VisitsPerPath(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "VISITS\tPATH")
	for _, c := range counts {
		fmt.Fprintf(w, "%d\t%s\n", c.VisitCount, c.Path)
	}
	return w.Flush()
}
