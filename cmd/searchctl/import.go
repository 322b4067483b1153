package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/postgres"
)

// maxLine bounds a single JSONL record.
const maxLine = 4 << 20

type importOptions struct {
	mode    string
	batch   int
	publish bool
}

type importStats struct {
	Read     int
	Imported int
	Skipped  int
	Revision uint64
}

func newImportCmd(g *globalFlags) *cobra.Command {
	opts := importOptions{}
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import movies from a JSON-lines file (- for stdin)",
		Long: "Import reads one movie object per line. By default movies are written straight\n" +
			"into the database; with --publish they are submitted to the indexer through Kafka.",
		Example: "searchctl import movies.jsonl --mode create_or_overwrite",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var (
				stats importStats
				err   error
			)
			if opts.publish {
				stats, err = publishMovies(cmd.Context(), g, in, opts.batch)
			} else {
				stats, err = importLocal(g, in, opts)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "read %d, imported %d, skipped %d", stats.Read, stats.Imported, stats.Skipped)
			if !opts.publish {
				fmt.Fprintf(cmd.OutOrStdout(), ", revision %d", stats.Revision)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringVar(&opts.mode, "mode", "", "open mode: create_or_open, create, create_or_overwrite, open")
	cmd.Flags().IntVar(&opts.batch, "batch", 1000, "movies per commit or per Kafka batch")
	cmd.Flags().BoolVar(&opts.publish, "publish", false, "submit through Kafka instead of writing locally")
	return cmd
}

func importLocal(g *globalFlags, in io.Reader, opts importOptions) (importStats, error) {
	analysis, err := ingestion.NewAnalysis(g.cfg.Indexer)
	if err != nil {
		return importStats{}, err
	}
	gen, err := analysis.TermGenerator()
	if err != nil {
		return importStats{}, err
	}
	w, err := g.openWritable(opts.mode)
	if err != nil {
		return importStats{}, err
	}
	stats, err := importMovies(in, w, gen, opts.batch)
	if cerr := w.Close(); err == nil {
		err = cerr
		stats.Revision = w.Revision()
	}
	return stats, err
}

// scanMovies calls fn for every valid movie in in. Malformed and invalid
// lines are logged and skipped.
func scanMovies(in io.Reader, stats *importStats, fn func(*ingestion.Movie) error) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64<<10), maxLine)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 || raw[0] == '[' || raw[0] == ']' {
			continue
		}
		stats.Read++
		m, err := ingestion.DecodeMovieLine(raw)
		if err == nil {
			err = validator.ValidateMovie(&m)
		}
		if err != nil {
			stats.Skipped++
			slog.Warn("skipping record", "line", line, "error", err)
			continue
		}
		if err := fn(&m); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("line %d exceeds %d bytes", line+1, maxLine)
		}
		return err
	}
	return nil
}

// importMovies replaces each movie by its id term and commits every batch
// movies. The final partial batch is left for the caller's Close to commit.
func importMovies(in io.Reader, w *database.WritableDatabase, gen *indexer.TermGenerator, batch int) (importStats, error) {
	var stats importStats
	pending := 0
	err := scanMovies(in, &stats, func(m *ingestion.Movie) error {
		doc, idterm, err := ingestion.BuildDocument(gen, m)
		if err != nil {
			return err
		}
		if _, err := w.ReplaceDocument(idterm, doc); err != nil {
			return err
		}
		stats.Imported++
		pending++
		if batch > 0 && pending >= batch {
			info, err := w.Commit()
			if err != nil {
				return err
			}
			pending = 0
			slog.Info("committed batch", "revision", info.Revision, "imported", stats.Imported, "doc_count", info.DocCount)
		}
		return nil
	})
	return stats, err
}

func publishMovies(ctx context.Context, g *globalFlags, in io.Reader, batch int) (importStats, error) {
	if !g.cfg.Kafka.Enabled {
		return importStats{}, errors.New("--publish needs kafka.enabled")
	}
	producer := kafka.NewProducer(g.cfg.Kafka, g.cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()
	var pg *postgres.Client
	if g.cfg.Postgres.Enabled {
		var err error
		if pg, err = postgres.New(ctx, g.cfg.Postgres); err != nil {
			return importStats{}, err
		}
		defer pg.Close()
	}
	pub := publisher.New(pg, producer)

	var stats importStats
	events := make([]ingestion.IngestEvent, 0, batch)
	send := func() error {
		if len(events) == 0 {
			return nil
		}
		if err := pub.SubmitBatch(ctx, events); err != nil {
			return err
		}
		stats.Imported += len(events)
		events = events[:0]
		return nil
	}
	err := scanMovies(in, &stats, func(m *ingestion.Movie) error {
		events = append(events, ingestion.IngestEvent{Op: ingestion.OpUpsert, Movie: *m})
		if len(events) >= max(batch, 1) {
			return send()
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	return stats, send()
}
