package main

import (
	"fmt"
	"io"

	merger "github.com/next-exp/drmerge/pkg"
	"github.com/spf13/cobra"
)

func NewInspectCommand(root *RootOptions) *cobra.Command {
	var events int

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Summarize a merged file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runNumber, offset, quality, err := merger.ReadRunInfo(args[0])
			if err != nil {
				return err
			}
			records, err := merger.ReadMergedFile(args[0])
			if err != nil {
				return err
			}
			printMergedSummary(cmd.OutOrStdout(), runNumber, offset, quality, records, events)
			return nil
		},
	}

	cmd.Flags().IntVarP(&events, "events", "n", 0, "number of events to print")

	return cmd
}

func printMergedSummary(out io.Writer, runNumber int, offset int, quality merger.OffsetQuality,
	records []merger.MergedRecord, events int) {
	empty := 0
	for _, record := range records {
		if record.IsEmpty() {
			empty++
		}
	}
	fmt.Fprintf(out, "run %d: offset %d (%s), %d events, %d without SiPM data\n",
		runNumber, offset, quality, len(records), empty)

	for i := 0; i < events && i < len(records); i++ {
		record := records[i]
		fmt.Fprintf(out, "  event %d timestamp %.0f us", record.EventNumber, record.TimestampMicros)
		for board, data := range record.Boards {
			sum := 0
			for _, value := range data.HighGain {
				sum += int(value)
			}
			fmt.Fprintf(out, " HG%d=%d", board, sum)
		}
		fmt.Fprintln(out)
	}
}
