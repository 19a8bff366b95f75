package merger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const physicsMask = 1

func gains(value uint16) []uint16 {
	values := make([]uint16, N_CHANNELS)
	for i := range values {
		values[i] = value
	}
	return values
}

// buildPrimary makes n DAQ events with the given positions flagged as pedestals.
func buildPrimary(n int, pedestals []int) *PrimaryTable {
	isPedestal := make(map[int]bool, len(pedestals))
	for _, p := range pedestals {
		isPedestal[p] = true
	}
	records := make([]PrimaryRecord, n)
	for i := range records {
		records[i].EventNumber = int32(1000 + i)
		records[i].TriggerMask = physicsMask
		if isPedestal[i] {
			records[i].TriggerMask = PEDESTAL_TRIGGER_MASK
		}
		records[i].ADCs[0] = int32(i)
		records[i].TDCsval[47] = int32(2 * i)
	}
	return NewPrimaryTable(records)
}

// buildSecondary makes one board 0 record per trigger id in 0..n-1, skipping
// the missing ones. High gain values equal the trigger id.
func buildSecondary(n int, missing []int) *SecondaryTable {
	skip := make(map[int]bool, len(missing))
	for _, m := range missing {
		skip[m] = true
	}
	records := make([]SecondaryRecord, 0, n)
	for id := 0; id < n; id++ {
		if skip[id] {
			continue
		}
		records = append(records, secondaryRecord(int64(id), 0, uint16(id), float64(10*id)))
	}
	return NewSecondaryTable(records)
}

func secondaryRecord(triggerID int64, board int, value uint16, timestamp float64) SecondaryRecord {
	return SecondaryRecord{
		TriggerID:       triggerID,
		BoardID:         board,
		HighGain:        gains(value),
		LowGain:         gains(value + 1),
		TimestampMicros: timestamp,
	}
}

// syntheticRun has pedestals at 10, 20, ..., 90 and SiPM triggers missing at
// 7, 17, ..., 87, so the offset is -3.
func syntheticRun() (*PrimaryTable, *SecondaryTable) {
	pedestals := make([]int, 0)
	missing := make([]int, 0)
	for p := 10; p <= 90; p += 10 {
		pedestals = append(pedestals, p)
		missing = append(missing, p-3)
	}
	return buildPrimary(100, pedestals), buildSecondary(100, missing)
}

func mustPattern(t *testing.T, primary PrimaryStore, secondary SecondaryStore) TriggerPattern {
	t.Helper()
	pattern, err := ExtractTriggerPattern(primary, secondary, PEDESTAL_TRIGGER_MASK)
	require.NoError(t, err)
	return pattern
}

func mustIndex(t *testing.T, secondary SecondaryStore) *SecondaryIndex {
	t.Helper()
	index, err := BuildSecondaryIndex(secondary)
	require.NoError(t, err)
	return index
}

func testConfiguration() Configuration {
	config := DefaultConfiguration()
	config.ProgressInterval = 0
	config.CompressionLevel = 0
	return config
}
