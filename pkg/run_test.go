package merger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRunFiles stores the synthetic run in HDF5 files and returns the job.
func writeRunFiles(t *testing.T, runNumber int) RunJob {
	t.Helper()
	dir := t.TempDir()
	primary, secondary := syntheticRun()

	job := RunJob{
		RunNumber:     runNumber,
		PrimaryFile:   filepath.Join(dir, "daq.h5"),
		SecondaryFile: filepath.Join(dir, "sipm.h5"),
		OutputFile:    filepath.Join(dir, "merged.h5"),
	}
	require.NoError(t, WritePrimaryFile(job.PrimaryFile, primary.Records()))

	records := make([]SecondaryRecord, secondary.Len())
	for i := range records {
		records[i], _ = secondary.Record(i)
	}
	info := SecondaryRunInfo{AcquisitionStartMs: 1690000000000, Events: 91, Boards: 1, AcquisitionMode: 3}
	require.NoError(t, WriteSecondaryFile(job.SecondaryFile, records, &info))
	return job
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name()
	}
	return names
}

func TestReadInputFiles(t *testing.T) {
	job := writeRunFiles(t, 1)

	primary, err := OpenPrimaryFile(job.PrimaryFile)
	require.NoError(t, err)
	defer primary.Close()
	assert.Equal(t, 100, primary.Len())
	masks, err := primary.TriggerMasks()
	require.NoError(t, err)
	assert.Equal(t, int64(PEDESTAL_TRIGGER_MASK), masks[10])
	record, err := primary.Record(42)
	require.NoError(t, err)
	assert.Equal(t, int32(1042), record.EventNumber)
	assert.Equal(t, int32(84), record.TDCsval[47])

	secondary, err := OpenSecondaryFile(job.SecondaryFile)
	require.NoError(t, err)
	defer secondary.Close()
	assert.Equal(t, 91, secondary.Len())
	info, ok := secondary.RunInfo()
	require.True(t, ok)
	assert.Equal(t, uint64(1690000000000), info.AcquisitionStartMs)
	sipm, err := secondary.Record(8)
	require.NoError(t, err)
	assert.Equal(t, int64(8), sipm.TriggerID)
	assert.Equal(t, gains(8), sipm.HighGain)
	assert.Equal(t, 80.0, sipm.TimestampMicros)
}

func TestTableRows(t *testing.T) {
	job := writeRunFiles(t, 1)
	file, err := openFile(job.SecondaryFile)
	require.NoError(t, err)
	defer file.Close()

	rows, err := tableRows(file, SIPM_GROUP, EVENTS_TABLE)
	require.NoError(t, err)
	assert.Equal(t, 91, rows)
	_, err = tableRows(file, DAQ_GROUP, EVENTS_TABLE)
	var readErr *ErrReadDataset
	assert.True(t, errors.As(err, &readErr))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := OpenPrimaryFile(filepath.Join(t.TempDir(), "missing.h5"))
	var openErr *ErrOpenFile
	assert.True(t, errors.As(err, &openErr))
}

func TestProcessRun(t *testing.T) {
	job := writeRunFiles(t, 12)
	summary, err := ProcessRun(context.Background(), job, testConfiguration())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.ProcessingID)
	assert.Equal(t, -3, summary.Offset)
	assert.Equal(t, OffsetClean, summary.OffsetQuality)
	assert.Equal(t, 100, summary.Merge.Events)
	assert.Equal(t, 12, summary.Merge.ZeroFilled)
	assert.False(t, summary.Skipped)
	assert.ElementsMatch(t, []string{"daq.h5", "sipm.h5", "merged.h5"}, dirEntries(t, filepath.Dir(job.OutputFile)))

	runNumber, offset, quality, err := ReadRunInfo(job.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, 12, runNumber)
	assert.Equal(t, -3, offset)
	assert.Equal(t, OffsetClean, quality)

	merged, err := ReadMergedFile(job.OutputFile)
	require.NoError(t, err)
	primary, secondary := syntheticRun()
	_, expected := mergeInMemory(t, primary.Len(), -3, secondary)
	assert.Equal(t, expected, merged)

	clone, err := OpenPrimaryFile(job.OutputFile)
	require.NoError(t, err)
	defer clone.Close()
	records, err := clone.Records()
	require.NoError(t, err)
	assert.Equal(t, primary.Records(), records)

	file, err := openFile(job.OutputFile)
	require.NoError(t, err)
	defer file.Close()
	infos, err := readTable[sipmRunInfoHDF5](file, SIPM_GROUP, RUNINFO_TABLE)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, uint8(3), infos[0].acquisitionMode)
	assert.Equal(t, uint64(91), infos[0].nEvents)

	histogram, err := readTable[gapHistogramHDF5](file, DIAGNOSTICS_GROUP, "pedestalGaps")
	require.NoError(t, err)
	assert.Len(t, histogram, N_GAP_BINS+2)
	assert.Equal(t, int32(8), histogram[10].count)
}

func TestProcessRunSkipMerge(t *testing.T) {
	job := writeRunFiles(t, 3)
	config := testConfiguration()
	config.SkipMerge = true

	summary, err := ProcessRun(context.Background(), job, config)
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Equal(t, -3, summary.Offset)
	assert.Equal(t, 0, summary.Merge.Events)

	runNumber, offset, quality, err := ReadRunInfo(job.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, 3, runNumber)
	assert.Equal(t, -3, offset)
	assert.Equal(t, OffsetClean, quality)

	file, err := openFile(job.OutputFile)
	require.NoError(t, err)
	defer file.Close()
	for _, name := range []string{"pedestalGaps", "complementGaps"} {
		histogram, err := readTable[gapHistogramHDF5](file, DIAGNOSTICS_GROUP, name)
		require.NoError(t, err, name)
		assert.Len(t, histogram, N_GAP_BINS+2, name)
	}
	for _, name := range []string{"pedestalPositions", "complementPositions"} {
		_, err := readTable[scatterPointHDF5](file, DIAGNOSTICS_GROUP, name)
		assert.NoError(t, err, name)
	}
	scanCurve, err := readTable[scatterPointHDF5](file, DIAGNOSTICS_GROUP, "offsetScan")
	require.NoError(t, err)
	assert.Len(t, scanCurve, 9)

	_, err = readTable[eventDataHDF5](file, SIPM_GROUP, EVENTS_TABLE)
	assert.Error(t, err)
	_, err = readTable[daqEventHDF5](file, DAQ_GROUP, EVENTS_TABLE)
	assert.Error(t, err)
}

func TestDiagnosticsWriterHasNoEventTables(t *testing.T) {
	config := testConfiguration()
	writer, err := NewDiagnosticsWriter(filepath.Join(t.TempDir(), "diagnostics.h5"), config)
	require.NoError(t, err)
	defer writer.Close()

	record := NewMergedRecord(0, config.BoardCount, config.ChannelsPerBoard)
	assert.ErrorIs(t, writer.WriteMerged(record), ErrNoEventLayout)
	assert.ErrorIs(t, writer.WritePrimary(nil), ErrNoEventLayout)
}

func TestMergeStreamsRejectsInvalidConfiguration(t *testing.T) {
	primary, secondary := syntheticRun()
	job := RunJob{RunNumber: 9, OutputFile: filepath.Join(t.TempDir(), "merged.h5")}
	config := testConfiguration()
	config.OffsetSearchWindow = -1

	_, err := MergeStreams(context.Background(), job, primary, secondary, config)
	var runErr *ErrRun
	require.True(t, errors.As(err, &runErr))
	assert.Contains(t, err.Error(), "offset_search_window")
	assert.NoFileExists(t, job.OutputFile)
}

func TestBoardViolationsReportedInBoardOrder(t *testing.T) {
	log := &recordingLogger{}
	SetLogger(log)
	defer SetLogger(nil)

	reportBoardViolations(6, MergeSummary{
		BoardViolations:   6,
		ViolationsByBoard: map[int]int{9: 1, -1: 2, 7: 3},
	})
	assert.Equal(t, []string{
		"run 6: 2 SiPM records with board id -1 out of range were skipped",
		"run 6: 3 SiPM records with board id 7 out of range were skipped",
		"run 6: 1 SiPM records with board id 9 out of range were skipped",
	}, log.errors)
}

func TestProcessRunAmbiguousOffsetLeavesNoOutput(t *testing.T) {
	job := writeRunFiles(t, 4)
	config := testConfiguration()
	config.FailOnAmbiguousOffset = true
	// The true offset -3 lies outside the window, every offset costs the same
	config.OffsetSearchWindow = 2

	_, err := ProcessRun(context.Background(), job, config)
	var ambiguous *ErrAmbiguousOffset
	require.True(t, errors.As(err, &ambiguous))
	assert.Equal(t, OffsetTied, ambiguous.Quality)
	assert.Equal(t, 9, ambiguous.Cost)
	var runErr *ErrRun
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, 4, runErr.RunNumber)
	assert.NoFileExists(t, job.OutputFile)
}

func TestProcessRunCancelledLeavesNoOutput(t *testing.T) {
	job := writeRunFiles(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ProcessRun(ctx, job, testConfiguration())
	assert.ErrorIs(t, err, context.Canceled)
	assert.ElementsMatch(t, []string{"daq.h5", "sipm.h5"}, dirEntries(t, filepath.Dir(job.OutputFile)))
}

type cancellingSecondary struct {
	*SecondaryTable
	cancel context.CancelFunc
	after  int
}

func (s *cancellingSecondary) Record(position int) (SecondaryRecord, error) {
	if position >= s.after {
		s.cancel()
	}
	return s.SecondaryTable.Record(position)
}

func TestMergeStreamsCancelledDuringMergeRemovesTemporaryFile(t *testing.T) {
	dir := t.TempDir()
	primary, secondary := syntheticRun()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job := RunJob{RunNumber: 6, OutputFile: filepath.Join(dir, "merged.h5")}

	_, err := MergeStreams(ctx, job, primary, &cancellingSecondary{SecondaryTable: secondary, cancel: cancel, after: 50}, testConfiguration())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dirEntries(t, dir))
}

func TestMergeStreamsEmptyPrimary(t *testing.T) {
	_, secondary := syntheticRun()
	job := RunJob{RunNumber: 8, OutputFile: filepath.Join(t.TempDir(), "merged.h5")}

	_, err := MergeStreams(context.Background(), job, NewPrimaryTable(nil), secondary, testConfiguration())
	var empty *ErrEmptyStream
	assert.True(t, errors.As(err, &empty))
	assert.NoFileExists(t, job.OutputFile)
}

func TestMergeSecondaryOnly(t *testing.T) {
	secondary := NewSecondaryTable([]SecondaryRecord{
		secondaryRecord(0, 0, 5, 1),
		secondaryRecord(1, 0, 6, 2),
		secondaryRecord(1, 4, 7, 2),
		secondaryRecord(2, 3, 8, 3),
	})
	job := RunJob{RunNumber: 9, OutputFile: filepath.Join(t.TempDir(), "sipm_only.h5")}

	summary, err := MergeSecondaryOnly(context.Background(), job, secondary, 1, testConfiguration())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.SecondaryTriggers)
	assert.Equal(t, 3, summary.Merge.Events)
	assert.Equal(t, 1, summary.Merge.ZeroFilled)

	merged, err := ReadMergedFile(job.OutputFile)
	require.NoError(t, err)
	require.Len(t, merged, 3)
	assert.Equal(t, gains(6), merged[0].Boards[0].HighGain)
	assert.Equal(t, gains(7), merged[0].Boards[4].HighGain)
	assert.Equal(t, gains(8), merged[1].Boards[3].HighGain)
	assert.True(t, merged[2].IsEmpty())

	_, offset, quality, err := ReadRunInfo(job.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, 1, offset)
	assert.Equal(t, OffsetNoPedestals, quality)
}
