package merger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mergeInMemory(t *testing.T, nPrimary int, offset int, secondary SecondaryStore) (MergeSummary, []MergedRecord) {
	t.Helper()
	sink := &MemorySink{}
	engine := NewMergeEngine(testConfiguration())
	summary, err := engine.Merge(context.Background(), nPrimary, offset, mustIndex(t, secondary), secondary, sink)
	require.NoError(t, err)
	assert.Equal(t, MergeDone, engine.State())
	return summary, sink.Records
}

func TestMergeSyntheticRun(t *testing.T) {
	primary, secondary := syntheticRun()
	summary, records := mergeInMemory(t, primary.Len(), -3, secondary)

	require.Len(t, records, primary.Len())
	assert.Equal(t, 100, summary.Events)

	// Events 0..2 look up negative ids, the pedestals look up missing ids
	assert.Equal(t, 12, summary.ZeroFilled)
	assert.Equal(t, 88, summary.Matched)
	assert.True(t, records[0].IsEmpty())
	assert.True(t, records[10].IsEmpty())

	assert.Equal(t, 11, records[11].EventNumber)
	assert.Equal(t, uint16(8), records[11].Boards[0].HighGain[0])
	assert.Equal(t, uint16(9), records[11].Boards[0].LowGain[63])
	assert.Equal(t, 80.0, records[11].TimestampMicros)
	for board := 1; board < N_BOARDS; board++ {
		assert.Equal(t, gains(0), records[11].Boards[board].HighGain)
	}
}

func TestMergeUnmatchedEventIsZeroFilled(t *testing.T) {
	secondary := buildSecondary(10, []int{4})
	summary, records := mergeInMemory(t, 10, 0, secondary)

	assert.Equal(t, 1, summary.ZeroFilled)
	assert.True(t, records[4].IsEmpty())
	assert.Equal(t, 4, records[4].EventNumber)
	assert.Len(t, records[4].Boards, N_BOARDS)
	assert.Equal(t, 0.0, records[4].TimestampMicros)
}

func TestMergeLastRecordWins(t *testing.T) {
	secondary := NewSecondaryTable([]SecondaryRecord{
		secondaryRecord(5, 2, 100, 1.5),
		secondaryRecord(5, 0, 7, 2.5),
		secondaryRecord(5, 2, 200, 3.5),
	})
	summary, records := mergeInMemory(t, 8, 0, secondary)

	assert.Equal(t, 1, summary.DuplicateBoards)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, gains(200), records[5].Boards[2].HighGain)
	assert.Equal(t, gains(201), records[5].Boards[2].LowGain)
	assert.Equal(t, gains(7), records[5].Boards[0].HighGain)
	assert.Equal(t, 3.5, records[5].TimestampMicros)
}

func TestMergeRejectsBoardOutOfRange(t *testing.T) {
	secondary := NewSecondaryTable([]SecondaryRecord{
		secondaryRecord(1, N_BOARDS, 50, 1),
		secondaryRecord(2, 1, 60, 2),
		secondaryRecord(2, -1, 70, 3),
	})
	summary, records := mergeInMemory(t, 3, 0, secondary)

	assert.Equal(t, 2, summary.BoardViolations)
	assert.Equal(t, 1, summary.ViolationsByBoard[N_BOARDS])
	assert.Equal(t, 1, summary.ViolationsByBoard[-1])
	assert.True(t, records[1].IsEmpty())
	assert.Equal(t, gains(60), records[2].Boards[1].HighGain)
	assert.Equal(t, 2.0, records[2].TimestampMicros)
	assert.Equal(t, 1, summary.Matched)
}

func TestMergeIsDeterministic(t *testing.T) {
	primary, secondary := syntheticRun()
	first, firstRecords := mergeInMemory(t, primary.Len(), -3, secondary)
	second, secondRecords := mergeInMemory(t, primary.Len(), -3, secondary)

	assert.Equal(t, first, second)
	assert.Equal(t, firstRecords, secondRecords)
}

func TestMergeRecordsDoNotShareBuffers(t *testing.T) {
	secondary := buildSecondary(3, nil)
	_, records := mergeInMemory(t, 3, 0, secondary)

	records[0].Boards[0].HighGain[0] = 999
	assert.Equal(t, uint16(1), records[1].Boards[0].HighGain[0])
	record, _ := secondary.Record(0)
	assert.Equal(t, uint16(0), record.HighGain[0])
}

func TestMergeChannelCount(t *testing.T) {
	record := secondaryRecord(0, 0, 1, 0)
	record.LowGain = record.LowGain[:10]
	secondary := NewSecondaryTable([]SecondaryRecord{record})

	engine := NewMergeEngine(testConfiguration())
	_, err := engine.Merge(context.Background(), 1, 0, mustIndex(t, secondary), secondary, &MemorySink{})

	var channelErr *ErrChannelCount
	require.True(t, errors.As(err, &channelErr))
	assert.Equal(t, 10, channelErr.Got)
	assert.Equal(t, N_CHANNELS, channelErr.Expected)
}

func TestMergeCancelled(t *testing.T) {
	primary, secondary := syntheticRun()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &MemorySink{}
	engine := NewMergeEngine(testConfiguration())
	_, err := engine.Merge(ctx, primary.Len(), -3, mustIndex(t, secondary), secondary, sink)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.Records)
	assert.Equal(t, MergeStreaming, engine.State())
}

func TestMergeEngineRunsOnce(t *testing.T) {
	secondary := buildSecondary(3, nil)
	index := mustIndex(t, secondary)
	engine := NewMergeEngine(testConfiguration())
	assert.Equal(t, MergeInit, engine.State())

	_, err := engine.Merge(context.Background(), 3, 0, index, secondary, &MemorySink{})
	require.NoError(t, err)
	_, err = engine.Merge(context.Background(), 3, 0, index, secondary, &MemorySink{})
	assert.ErrorIs(t, err, ErrMergeStarted)
	assert.Equal(t, "DONE", engine.State().String())
}

type failingSink struct{ after int }

func (s *failingSink) WriteMerged(record MergedRecord) error {
	if record.EventNumber >= s.after {
		return errors.New("disk full")
	}
	return nil
}

func TestMergeSinkError(t *testing.T) {
	secondary := buildSecondary(5, nil)
	engine := NewMergeEngine(testConfiguration())
	summary, err := engine.Merge(context.Background(), 5, 0, mustIndex(t, secondary), secondary, &failingSink{after: 2})

	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 2, summary.Events)
}
