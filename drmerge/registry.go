package main

import (
	"errors"
	"fmt"
	"io"

	sqlx "github.com/jmoiron/sqlx"
	merger "github.com/next-exp/drmerge/pkg"
	"github.com/spf13/cobra"
)

func openRegistry(config merger.Configuration) (*sqlx.DB, error) {
	db, err := merger.ConnectToDatabase(config.User, config.Passwd, config.Host, config.DBName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := merger.CreateRunRegistry(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func saveResults(config merger.Configuration, results []merger.RunResult) error {
	db, err := openRegistry(config)
	if err != nil {
		return err
	}
	defer db.Close()
	return saveSummaries(db, results)
}

// saveSummaries stores every run that got as far as an offset.
func saveSummaries(db *sqlx.DB, results []merger.RunResult) error {
	var errs []error
	for _, result := range results {
		if result.Summary.ProcessingID == "" {
			continue
		}
		if err := merger.SaveRunSummary(db, result.Summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func NewRegistryCommand(root *RootOptions) *cobra.Command {
	var runNumber int

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "List the processing history of a run, or the runs with an ambiguous offset",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openRegistry(root.Config)
			if err != nil {
				return err
			}
			defer db.Close()

			var entries []merger.RunRegistryEntry
			if cmd.Flags().Changed("run") {
				entries, err = merger.GetRunHistory(db, runNumber)
			} else {
				entries, err = merger.GetAmbiguousRuns(db)
			}
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.Flags().IntVar(&runNumber, "run", 0, "run number")

	return cmd
}

func printEntries(out io.Writer, entries []merger.RunRegistryEntry) {
	for _, entry := range entries {
		fmt.Fprintf(out, "%s run %d offset %d cost %d %s events %d zero-filled %d violations %d skipped %t %s\n",
			entry.ProcessedAt.Format("2006/01/02 15:04:05"), entry.RunNumber, entry.Offset, entry.OffsetCost,
			entry.OffsetQuality, entry.MergedEvents, entry.ZeroFilledEvents, entry.BoardViolations,
			entry.Skipped, entry.ProcessingID)
	}
}
