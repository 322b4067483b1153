package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
)

func newDeleteCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID...",
		Short:   "Delete movies by id and commit",
		Example: "searchctl delete 238 240",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid movie id %q", arg)
				}
				ids = append(ids, id)
			}
			w, err := g.openWritable(database.ModeOpen.String())
			if err != nil {
				return err
			}
			defer w.Close()
			deleted, err := deleteMovies(w, ids)
			if err != nil {
				return err
			}
			info, err := w.Commit()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d of %d, revision %d\n", deleted, len(ids), info.Revision)
			return nil
		},
	}
}

// deleteMovies removes each movie by its id term. Ids with no document are
// not an error.
func deleteMovies(w *database.WritableDatabase, ids []int64) (int, error) {
	total := 0
	for _, id := range ids {
		n, err := w.DeleteDocument(ingestion.UniqueTerm(id))
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
