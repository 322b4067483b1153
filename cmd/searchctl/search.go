package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/handler"
)

func newSearchCmd(g *globalFlags) *cobra.Command {
	var (
		req     handler.Request
		asJSON  bool
		explain bool
	)
	cmd := &cobra.Command{
		Use:   "search [QUERY...]",
		Short: "Run a query against the database",
		Example: `searchctl search 'title:godfather year:1970..1979' --facet genres
searchctl search --sort -year --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Query = strings.Join(args, " ")
			db, err := database.Open(g.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			analysis, err := ingestion.NewAnalysis(g.cfg.Indexer)
			if err != nil {
				return err
			}
			s := handler.NewSearcher(db, analysis, nil, g.cfg.Search)
			data, _, err := s.Search(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON {
				_, err := cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			var resp handler.Response
			if err := json.Unmarshal(data, &resp); err != nil {
				return err
			}
			return printResults(cmd.OutOrStdout(), &resp, explain)
		},
	}
	cmd.Flags().IntVar(&req.Offset, "offset", 0, "rank of the first result")
	cmd.Flags().IntVarP(&req.Limit, "limit", "n", 0, "maximum results (default search.defaultLimit)")
	cmd.Flags().IntVar(&req.CheckAtLeast, "check-at-least", 0, "candidates to examine for exact counts")
	cmd.Flags().StringSliceVar(&req.Facets, "facet", nil, "facet to count: genres, date")
	cmd.Flags().StringVar(&req.Sort, "sort", "", "sort by year or date, prefix - for descending")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw JSON response")
	cmd.Flags().BoolVar(&explain, "explain", false, "print the parsed query")
	return cmd
}

func printResults(out io.Writer, resp *handler.Response, explain bool) error {
	if explain {
		fmt.Fprintf(out, "parsed: %s\n", resp.Parsed)
	}
	fmt.Fprintf(out, "about %d matches (between %d and %d)\n\n", resp.MatchesEstimated, resp.MatchesLower, resp.MatchesUpper)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tID\tYEAR\tSCORE\tTITLE")
	for _, r := range resp.Results {
		year := ""
		if r.Movie.ReleaseDate != 0 {
			year = fmt.Sprint(r.Movie.Released().Year())
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d%%\t%s\n", r.Rank+1, r.Movie.ID, year, r.Percent, r.Movie.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(resp.Facets)) {
		fmt.Fprintf(out, "\n%s:\n", name)
		for _, c := range resp.Facets[name] {
			fmt.Fprintf(out, "  %-30s %d\n", c.Value, c.Count)
		}
	}
	return nil
}
