package merger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const PRIMARY_CLONE_BLOCK = 10000

// RunSummary is what a processed run reports to the operators and to the
// run registry.
type RunSummary struct {
	ProcessingID      string
	RunNumber         int
	OutputFile        string
	Offset            int
	OffsetCost        int
	OffsetQuality     OffsetQuality
	Pedestals         int
	PrimaryEvents     int
	SecondaryRecords  int
	SecondaryTriggers int
	Merge             MergeSummary
	Skipped           bool
	Duration          time.Duration
}

// ProcessRun merges the DAQ and SiPM files of one run. The merged file only
// appears under job.OutputFile once it has been completely written.
func ProcessRun(ctx context.Context, job RunJob, config Configuration) (RunSummary, error) {
	primary, err := OpenPrimaryFile(job.PrimaryFile)
	if err != nil {
		return RunSummary{RunNumber: job.RunNumber}, &ErrRun{RunNumber: job.RunNumber, Err: err}
	}
	defer primary.Close()

	secondary, err := OpenSecondaryFile(job.SecondaryFile)
	if err != nil {
		return RunSummary{RunNumber: job.RunNumber}, &ErrRun{RunNumber: job.RunNumber, Err: err}
	}
	defer secondary.Close()

	return MergeStreams(ctx, job, primary, secondary, config)
}

func newRunSummary(job RunJob) RunSummary {
	return RunSummary{
		ProcessingID: uuid.NewString(),
		RunNumber:    job.RunNumber,
		OutputFile:   job.OutputFile,
	}
}

// MergeStreams finds the offset between the two streams and writes the merged
// file. With SkipMerge the file only holds the run info and the offset
// diagnostics.
func MergeStreams(ctx context.Context, job RunJob, primary PrimaryStore, secondary SecondaryStore,
	config Configuration) (RunSummary, error) {
	start := time.Now()
	summary := newRunSummary(job)
	summary.PrimaryEvents = primary.Len()
	summary.SecondaryRecords = secondary.Len()

	fail := func(err error) (RunSummary, error) {
		summary.Duration = time.Since(start)
		return summary, &ErrRun{RunNumber: job.RunNumber, Err: err}
	}

	if err := config.Validate(); err != nil {
		return fail(err)
	}
	pattern, scan, err := FindOffset(job.RunNumber, primary, secondary, config)
	if err != nil {
		return fail(err)
	}
	summary.SecondaryTriggers = pattern.SecondaryIDs
	summary.Offset = scan.Offset
	summary.OffsetCost = scan.Cost
	summary.OffsetQuality = scan.Quality
	summary.Pedestals = scan.Pedestals

	if scan.Quality.Ambiguous() && config.FailOnAmbiguousOffset {
		return fail(&ErrAmbiguousOffset{Offset: scan.Offset, Cost: scan.Cost, Quality: scan.Quality})
	}

	if config.SkipMerge {
		summary.Skipped = true
		err = publishAtomically(job.OutputFile, summary.ProcessingID, NewDiagnosticsWriter, func(writer *Writer) error {
			if err := writer.WriteDiagnostics(BuildDiagnostics(pattern, scan)); err != nil {
				return err
			}
			return writer.WriteRunInfo(job.RunNumber, scan, primary.Len(), secondary.Len())
		}, config)
		if err != nil {
			return fail(err)
		}
		summary.Duration = time.Since(start)
		return summary, nil
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	index, err := BuildSecondaryIndex(secondary)
	if err != nil {
		return fail(err)
	}

	err = publishAtomically(job.OutputFile, summary.ProcessingID, NewWriter, func(writer *Writer) error {
		if err := clonePrimary(primary, writer); err != nil {
			return err
		}
		if info, ok := secondary.RunInfo(); ok {
			if err := writer.WriteSecondaryRunInfo(info); err != nil {
				return err
			}
		}
		if err := writer.WriteDiagnostics(BuildDiagnostics(pattern, scan)); err != nil {
			return err
		}
		if err := writer.WriteRunInfo(job.RunNumber, scan, primary.Len(), secondary.Len()); err != nil {
			return err
		}

		if config.Verbosity > 0 {
			message := fmt.Sprintf("Run %d: merging %d DAQ events with an offset of %d", job.RunNumber, primary.Len(), scan.Offset)
			logger.Info(message, "merge")
		}
		engine := NewMergeEngine(config)
		summary.Merge, err = engine.Merge(ctx, primary.Len(), scan.Offset, index, secondary, writer)
		return err
	}, config)
	if err != nil {
		return fail(err)
	}

	reportBoardViolations(job.RunNumber, summary.Merge)
	summary.Duration = time.Since(start)
	return summary, nil
}

// FindOffset extracts the trigger pattern of a run and scans it for the
// offset between the two streams.
func FindOffset(runNumber int, primary PrimaryStore, secondary SecondaryStore,
	config Configuration) (TriggerPattern, OffsetScan, error) {
	pattern, err := ExtractTriggerPattern(primary, secondary, config.PedestalTriggerMask)
	if err != nil {
		return TriggerPattern{}, OffsetScan{}, err
	}
	if config.Verbosity > 0 {
		message := fmt.Sprintf("Run %d: DAQ events %d, pedestals %d, DAQ events with no SiPM trigger %d",
			runNumber, pattern.PrimaryEvents, len(pattern.Pedestals), len(pattern.Complement))
		logger.Info(message, "offset")
	}

	scan := EstimateOffset(pattern, ScanOptionsFromConfig(config))
	logOffsetScan(scan, runNumber, config.Verbosity)
	return pattern, scan, nil
}

// MergeSecondaryOnly aligns the SiPM stream without a DAQ stream: events are
// numbered 0..N-1 over the N distinct trigger ids and looked up at
// event+offset. No DAQ events are cloned.
func MergeSecondaryOnly(ctx context.Context, job RunJob, secondary SecondaryStore, offset int,
	config Configuration) (RunSummary, error) {
	start := time.Now()
	summary := newRunSummary(job)
	summary.Offset = offset
	summary.OffsetQuality = OffsetNoPedestals
	summary.SecondaryRecords = secondary.Len()

	if secondary.Len() == 0 {
		return summary, &ErrRun{RunNumber: job.RunNumber, Err: &ErrEmptyStream{Stream: "secondary"}}
	}
	index, err := BuildSecondaryIndex(secondary)
	if err != nil {
		return summary, &ErrRun{RunNumber: job.RunNumber, Err: err}
	}
	summary.SecondaryTriggers = index.Len()
	nEvents := index.Len()
	if config.Verbosity > 0 {
		ids := index.TriggerIDs()
		message := fmt.Sprintf("Run %d: %d SiPM triggers, ids %d to %d, offset %d",
			job.RunNumber, nEvents, ids[0], ids[len(ids)-1], offset)
		logger.Info(message, "merge")
	}
	scan := OffsetScan{Offset: offset, Quality: OffsetNoPedestals}

	err = publishAtomically(job.OutputFile, summary.ProcessingID, NewWriter, func(writer *Writer) error {
		if info, ok := secondary.RunInfo(); ok {
			if err := writer.WriteSecondaryRunInfo(info); err != nil {
				return err
			}
		}
		if err := writer.WriteRunInfo(job.RunNumber, scan, 0, secondary.Len()); err != nil {
			return err
		}
		engine := NewMergeEngine(config)
		summary.Merge, err = engine.Merge(ctx, nEvents, offset, index, secondary, writer)
		return err
	}, config)
	if err != nil {
		return summary, &ErrRun{RunNumber: job.RunNumber, Err: err}
	}

	reportBoardViolations(job.RunNumber, summary.Merge)
	summary.Duration = time.Since(start)
	return summary, nil
}

func clonePrimary(primary PrimaryStore, writer *Writer) error {
	block := make([]PrimaryRecord, 0, PRIMARY_CLONE_BLOCK)
	for position := 0; position < primary.Len(); position++ {
		record, err := primary.Record(position)
		if err != nil {
			return fmt.Errorf("error reading primary record %d: %w", position, err)
		}
		block = append(block, record)
		if len(block) == PRIMARY_CLONE_BLOCK {
			if err := writer.WritePrimary(block); err != nil {
				return err
			}
			block = block[:0]
		}
	}
	return writer.WritePrimary(block)
}

type writerFactory func(filename string, config Configuration) (*Writer, error)

// publishAtomically runs write against a temporary file next to the output
// and renames it to the output name when everything succeeded. The
// temporary file is removed on any error.
func publishAtomically(output string, processingID string, create writerFactory,
	write func(*Writer) error, config Configuration) error {
	tmpFile := filepath.Join(filepath.Dir(output), fmt.Sprintf(".%s.%s.tmp", filepath.Base(output), processingID))

	writer, err := create(tmpFile, config)
	if err != nil {
		os.Remove(tmpFile)
		return err
	}

	if err := write(writer); err != nil {
		writer.Close()
		os.Remove(tmpFile)
		return err
	}
	if err := writer.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}
	if err := os.Rename(tmpFile, output); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("error publishing %s: %w", output, err)
	}
	return nil
}

func reportBoardViolations(runNumber int, merge MergeSummary) {
	if merge.BoardViolations == 0 {
		return
	}
	boards := maps.Keys(merge.ViolationsByBoard)
	slices.Sort(boards)
	for _, board := range boards {
		count := merge.ViolationsByBoard[board]
		message := fmt.Sprintf("run %d: %d SiPM records with board id %d out of range were skipped", runNumber, count, board)
		logger.Error(message)
	}
}
