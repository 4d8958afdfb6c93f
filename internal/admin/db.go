package admin

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/server/config"
	"github.com/dmitrijs2005/teamsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/teamsync/internal/server/services"
	"github.com/dmitrijs2005/teamsync/internal/timex"
	"github.com/spf13/cobra"
)

type dbFlags struct {
	driver string
	dsn    string
}

func (d *dbFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&d.driver, "driver", "postgres", "database driver (postgres|sqlite)")
	f.StringVar(&d.dsn, "dsn", "", "database DSN")
	_ = cmd.MarkFlagRequired("dsn")
}

func newMigrateCmd() *cobra.Command {
	var db dbFlags

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, rm, err := repomanager.Open(db.driver, db.dsn)
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := rm.RunMigrations(cmd.Context(), conn); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", rm.Dialect())
			return err
		},
	}
	db.register(cmd)
	return cmd
}

func newPurgeCmd() *cobra.Command {
	var (
		db         dbFlags
		olderThan  time.Duration
		retention  time.Duration
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove soft-deleted records and tombstones past retention",
		Long: `Remove soft-deleted records and their tombstones older than --older-than.

The cutoff may not be shorter than the server's tombstone_retention, taken from
--retention or else from the server config (--config plus TEAMSYNC_* variables).
Purging inside that window would drop deletions that devices holding a still
accepted checkpoint have not fetched yet. --older-than defaults to the retention.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("retention") {
				cfg, err := config.LoadFile(configPath)
				if err != nil {
					return err
				}
				retention = cfg.TombstoneRetention
			}
			if !cmd.Flags().Changed("older-than") {
				olderThan = retention
			}
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			if olderThan < retention {
				return fmt.Errorf("--older-than %s is shorter than the tombstone retention %s", olderThan, retention)
			}

			conn, rm, err := repomanager.Open(db.driver, db.dsn)
			if err != nil {
				return err
			}
			defer conn.Close()

			p := services.NewDeletionPropagator(conn, rm, timex.SystemClock)
			stats, err := p.Purge(cmd.Context(), timex.SystemClock().Add(-olderThan))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "purged %d records, %d tombstones\n", stats.Records, stats.Tombstones)
			return err
		},
	}
	db.register(cmd)
	f := cmd.Flags()
	f.DurationVar(&olderThan, "older-than", 0, "purge deletions older than this (default: the retention)")
	f.DurationVar(&retention, "retention", 0, "tombstone retention the server runs with")
	f.StringVarP(&configPath, "config", "c", "", "server config file to read the retention from")
	return cmd
}
