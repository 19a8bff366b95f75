package merger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimaryTable(t *testing.T) {
	table := NewPrimaryTable([]PrimaryRecord{
		{Index: 12, EventNumber: 5, TriggerMask: PEDESTAL_TRIGGER_MASK},
		{Index: 40, EventNumber: 6, TriggerMask: physicsMask},
	})

	require.Equal(t, 2, table.Len())
	record, err := table.Record(1)
	require.NoError(t, err)
	assert.Equal(t, 1, record.Index)
	assert.Equal(t, int32(6), record.EventNumber)

	masks, err := table.TriggerMasks()
	require.NoError(t, err)
	assert.Equal(t, []int64{PEDESTAL_TRIGGER_MASK, physicsMask}, masks)

	records := table.Records()
	records[0].EventNumber = 99
	first, _ := table.Record(0)
	assert.Equal(t, int32(5), first.EventNumber)
	assert.True(t, first.IsPedestal(PEDESTAL_TRIGGER_MASK))

	_, err = table.Record(2)
	var rangeErr *ErrRecordRange
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, "primary", rangeErr.Stream)
	assert.Equal(t, 2, rangeErr.Len)

	_, err = table.Record(-1)
	assert.Error(t, err)
}

func TestSecondaryTable(t *testing.T) {
	table := NewSecondaryTable([]SecondaryRecord{
		secondaryRecord(4, 0, 1, 0),
		secondaryRecord(4, 1, 1, 0),
		secondaryRecord(5, 0, 1, 0),
	})

	ids, err := table.TriggerIDs()
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 4, 5}, ids)

	_, ok := table.RunInfo()
	assert.False(t, ok)
	table.SetRunInfo(SecondaryRunInfo{Events: 2, Boards: 2})
	info, ok := table.RunInfo()
	assert.True(t, ok)
	assert.Equal(t, uint8(2), info.Boards)

	_, err = table.Record(3)
	var rangeErr *ErrRecordRange
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, "secondary", rangeErr.Stream)
}

func TestMergedRecordIsEmpty(t *testing.T) {
	record := NewMergedRecord(3, 2, 4)
	assert.True(t, record.IsEmpty())
	assert.Len(t, record.Boards, 2)
	assert.Len(t, record.Boards[1].LowGain, 4)

	record.Boards[1].LowGain[3] = 1
	assert.False(t, record.IsEmpty())
}
