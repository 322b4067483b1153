package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/handler"
)

func newStatsCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the committed revision and collection statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open(g.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			analysis, err := ingestion.NewAnalysis(g.cfg.Indexer)
			if err != nil {
				return err
			}
			stats, err := handler.NewSearcher(db, analysis, nil, g.cfg.Search).Stats()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "path\t%s\n", db.Path())
			fmt.Fprintf(tw, "uuid\t%s\n", stats.UUID)
			fmt.Fprintf(tw, "revision\t%d\n", stats.Revision)
			fmt.Fprintf(tw, "documents\t%d\n", stats.DocCount)
			fmt.Fprintf(tw, "last docid\t%d\n", stats.LastDocID)
			fmt.Fprintf(tw, "avg length\t%.2f\n", stats.AvgLength)
			for _, err := range db.CorruptSegments() {
				fmt.Fprintf(tw, "corrupt\t%v\n", err)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
