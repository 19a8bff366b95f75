package main

import (
	"errors"
	"fmt"
	"io"

	merger "github.com/next-exp/drmerge/pkg"
	"github.com/spf13/cobra"
)

type OffsetOptions struct {
	Run    RunFlags
	Window int
}

func NewOffsetCommand(root *RootOptions) *cobra.Command {
	opts := &OffsetOptions{}

	cmd := &cobra.Command{
		Use:   "offset",
		Short: "Print the offset scan of each run without writing any file",
		RunE: func(cmd *cobra.Command, args []string) error {
			config := root.Config
			if cmd.Flags().Changed("window") {
				config.OffsetSearchWindow = opts.Window
			}
			if err := config.Validate(); err != nil {
				return err
			}
			jobs, err := runJobs(opts.Run, config, true, false)
			if err != nil {
				return err
			}

			var errs []error
			for _, job := range jobs {
				scan, err := scanRun(job, config)
				if err != nil {
					errs = append(errs, &merger.ErrRun{RunNumber: job.RunNumber, Err: err})
					continue
				}
				printScan(cmd.OutOrStdout(), job.RunNumber, scan)
			}
			return errors.Join(errs...)
		},
	}

	addRunFlags(cmd, &opts.Run)
	cmd.Flags().IntVar(&opts.Window, "window", 4, "offset search window")

	return cmd
}

func scanRun(job merger.RunJob, config merger.Configuration) (merger.OffsetScan, error) {
	primary, err := merger.OpenPrimaryFile(job.PrimaryFile)
	if err != nil {
		return merger.OffsetScan{}, err
	}
	defer primary.Close()

	secondary, err := merger.OpenSecondaryFile(job.SecondaryFile)
	if err != nil {
		return merger.OffsetScan{}, err
	}
	defer secondary.Close()

	_, scan, err := merger.FindOffset(job.RunNumber, primary, secondary, config)
	return scan, err
}

func printScan(out io.Writer, runNumber int, scan merger.OffsetScan) {
	fmt.Fprintf(out, "run %d: offset %d, cost %d of %d pedestals, %s\n",
		runNumber, scan.Offset, scan.Cost, scan.Pedestals, scan.Quality)
	for _, c := range scan.Costs {
		marker := ""
		if c.Offset == scan.Offset {
			marker = " *"
		}
		fmt.Fprintf(out, "  %+3d %8d%s\n", c.Offset, c.Cost, marker)
	}
}
