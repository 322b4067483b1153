// Command searchctl administers a search database from the shell: bulk
// imports, ad-hoc queries, deletions and load tests.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
)

type globalFlags struct {
	configPath string
	dbPath     string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "searchctl",
		Short:         "Administer a movie search database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			if g.dbPath != "" {
				cfg.Database.Path = g.dbPath
			}
			level := cfg.Logging.Level
			if g.logLevel != "" {
				level = g.logLevel
			}
			logger.SetupWriter(cmd.ErrOrStderr(), level, cfg.Logging.Format)
			g.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to config file (defaults and SC_* environment when empty)")
	root.PersistentFlags().StringVar(&g.dbPath, "db", "", "database directory (overrides database.path)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (overrides logging.level)")

	root.AddCommand(
		newImportCmd(g),
		newSearchCmd(g),
		newDeleteCmd(g),
		newStatsCmd(g),
		newBenchCmd(g),
	)
	return root
}

// openWritable opens the configured database for writing, honouring an
// explicit --mode over database.mode.
func (g *globalFlags) openWritable(mode string) (*database.WritableDatabase, error) {
	if mode == "" {
		mode = g.cfg.Database.Mode
	}
	m, err := database.ParseOpenMode(mode)
	if err != nil {
		return nil, err
	}
	return database.OpenWritable(g.cfg.Database.Path, m, database.Options{
		AutoCommitSize:         g.cfg.Indexer.SegmentMaxSize,
		MaxSegmentsBeforeMerge: g.cfg.Indexer.MaxSegmentsBeforeMerge,
	})
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "searchctl:", err)
		os.Exit(1)
	}
}
