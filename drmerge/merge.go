package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	merger "github.com/next-exp/drmerge/pkg"
	"github.com/spf13/cobra"
)

// RunFlags describe a single run given on the command line instead of the
// configuration file.
type RunFlags struct {
	RunNumber     int
	PrimaryFile   string
	SecondaryFile string
	OutputFile    string
}

func (f RunFlags) given() bool {
	return f.PrimaryFile != "" || f.SecondaryFile != "" || f.OutputFile != ""
}

type MergeOptions struct {
	Run             RunFlags
	Window          int
	Workers         int
	SkipMerge       bool
	FailOnAmbiguous bool
	SipmOnly        bool
	Offset          int
}

var ErrNoRuns = errors.New("no runs to process: give --primary/--secondary/--output or a configuration file with runs")

func addRunFlags(cmd *cobra.Command, run *RunFlags) {
	cmd.Flags().IntVar(&run.RunNumber, "run", 0, "run number")
	cmd.Flags().StringVar(&run.PrimaryFile, "primary", "", "DAQ file (/DAQ/events)")
	cmd.Flags().StringVar(&run.SecondaryFile, "secondary", "", "SiPM file (/SiPM/events)")
	cmd.Flags().StringVar(&run.OutputFile, "output", "", "merged output file")
}

// runJobs returns the single run given by flags, or the runs of the
// configuration file.
func runJobs(run RunFlags, config merger.Configuration, needPrimary bool, needOutput bool) ([]merger.RunJob, error) {
	if !run.given() {
		if len(config.Runs) == 0 {
			return nil, ErrNoRuns
		}
		return config.Runs, nil
	}
	var errs []error
	if needPrimary && run.PrimaryFile == "" {
		errs = append(errs, errors.New("--primary is required"))
	}
	if run.SecondaryFile == "" {
		errs = append(errs, errors.New("--secondary is required"))
	}
	if needOutput && run.OutputFile == "" {
		errs = append(errs, errors.New("--output is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	job := merger.RunJob{
		RunNumber:     run.RunNumber,
		PrimaryFile:   run.PrimaryFile,
		SecondaryFile: run.SecondaryFile,
		OutputFile:    run.OutputFile,
	}
	return []merger.RunJob{job}, nil
}

// applyMergeFlags overrides the configuration with the flags that were set.
func applyMergeFlags(cmd *cobra.Command, opts *MergeOptions, config merger.Configuration) merger.Configuration {
	if cmd.Flags().Changed("window") {
		config.OffsetSearchWindow = opts.Window
	}
	if cmd.Flags().Changed("workers") {
		config.NumWorkers = opts.Workers
	}
	if cmd.Flags().Changed("skip-merge") {
		config.SkipMerge = opts.SkipMerge
	}
	if cmd.Flags().Changed("fail-on-ambiguous") {
		config.FailOnAmbiguousOffset = opts.FailOnAmbiguous
	}
	return config
}

func NewMergeCommand(root *RootOptions) *cobra.Command {
	opts := &MergeOptions{}

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Find the offset and write the merged file of each run",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := applyMergeFlags(cmd, opts, root.Config)
			if err := config.Validate(); err != nil {
				return err
			}
			jobs, err := runJobs(opts.Run, config, !opts.SipmOnly, true)
			if err != nil {
				return err
			}

			var results []merger.RunResult
			if opts.SipmOnly {
				results = merger.ProcessRuns(cmd.Context(), jobs, config, sipmOnlyProcessor(opts.Offset))
			} else {
				results = merger.ProcessRuns(cmd.Context(), jobs, config, merger.ProcessRun)
			}

			if config.UseDB {
				if err := saveResults(config, results); err != nil {
					logger.Error(err.Error())
				}
			}
			return reportResults(cmd.OutOrStdout(), results)
		},
	}

	addRunFlags(cmd, &opts.Run)
	cmd.Flags().IntVar(&opts.Window, "window", 4, "offset search window")
	cmd.Flags().IntVar(&opts.Workers, "workers", 1, "number of runs processed in parallel")
	cmd.Flags().BoolVar(&opts.SkipMerge, "skip-merge", false, "compute the offset and write only the diagnostics")
	cmd.Flags().BoolVar(&opts.FailOnAmbiguous, "fail-on-ambiguous", false, "abort runs whose offset is not clean")
	cmd.Flags().BoolVar(&opts.SipmOnly, "sipm-only", false, "merge the SiPM stream without a DAQ file")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "offset used with --sipm-only")

	return cmd
}

func sipmOnlyProcessor(offset int) merger.RunProcessor {
	return func(ctx context.Context, job merger.RunJob, config merger.Configuration) (merger.RunSummary, error) {
		secondary, err := merger.OpenSecondaryFile(job.SecondaryFile)
		if err != nil {
			return merger.RunSummary{RunNumber: job.RunNumber}, &merger.ErrRun{RunNumber: job.RunNumber, Err: err}
		}
		defer secondary.Close()
		return merger.MergeSecondaryOnly(ctx, job, secondary, offset, config)
	}
}

func reportResults(out io.Writer, results []merger.RunResult) error {
	var errs []error
	for _, result := range results {
		if result.Err != nil {
			errs = append(errs, result.Err)
			continue
		}
		summary := result.Summary
		if summary.Skipped {
			fmt.Fprintf(out, "run %d: offset %d (cost %d, %s), merge skipped, diagnostics -> %s\n",
				summary.RunNumber, summary.Offset, summary.OffsetCost, summary.OffsetQuality, summary.OutputFile)
			continue
		}
		fmt.Fprintf(out, "run %d: offset %d (cost %d, %s), %d events, %d matched, %d zero-filled, %d board violations, %d duplicates -> %s\n",
			summary.RunNumber, summary.Offset, summary.OffsetCost, summary.OffsetQuality,
			summary.Merge.Events, summary.Merge.Matched, summary.Merge.ZeroFilled,
			summary.Merge.BoardViolations, summary.Merge.DuplicateBoards, summary.OutputFile)
	}
	return errors.Join(errs...)
}
