package merger

import (
	"context"
	"errors"
	"fmt"
)

type MergeState int

const (
	MergeInit MergeState = iota
	MergeStreaming
	MergeDone
)

func (s MergeState) String() string {
	switch s {
	case MergeInit:
		return "INIT"
	case MergeStreaming:
		return "STREAMING"
	case MergeDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// MergedSink receives the merged events in DAQ order.
type MergedSink interface {
	WriteMerged(record MergedRecord) error
}

type MergeSummary struct {
	Events            int
	Matched           int
	ZeroFilled        int
	BoardViolations   int
	ViolationsByBoard map[int]int
	DuplicateBoards   int
}

// MergeEngine builds one merged record per DAQ event. An engine runs a
// single merge.
type MergeEngine struct {
	boardCount       int
	channelsPerBoard int
	progressInterval int
	verbosity        int
	state            MergeState
}

func NewMergeEngine(config Configuration) *MergeEngine {
	return &MergeEngine{
		boardCount:       config.BoardCount,
		channelsPerBoard: config.ChannelsPerBoard,
		progressInterval: config.ProgressInterval,
		verbosity:        config.Verbosity,
		state:            MergeInit,
	}
}

func (m *MergeEngine) State() MergeState {
	return m.state
}

var ErrMergeStarted = errors.New("merge engine already used")

// Merge walks the DAQ positions 0..nPrimary-1 and looks up the SiPM records
// with trigger id position+offset. When several records of the same board
// share a trigger id, the one read last wins; the same holds for the
// timestamp. Records with a board id outside [0, boardCount) are counted
// and skipped.
func (m *MergeEngine) Merge(ctx context.Context, nPrimary int, offset int,
	index *SecondaryIndex, secondary SecondaryStore, sink MergedSink) (MergeSummary, error) {
	if m.state != MergeInit {
		return MergeSummary{}, ErrMergeStarted
	}
	m.state = MergeStreaming

	summary := MergeSummary{ViolationsByBoard: make(map[int]int)}
	for evt := 0; evt < nPrimary; evt++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if m.progressInterval > 0 && evt%m.progressInterval == 0 {
			logger.Info(fmt.Sprintf("%d events processed", evt), "merge")
		}

		record := NewMergedRecord(evt, m.boardCount, m.channelsPerBoard)
		positions, _ := index.Lookup(int64(evt + offset))
		contributed := false
		filled := make([]bool, m.boardCount)
		for _, position := range positions {
			sipm, err := secondary.Record(position)
			if err != nil {
				return summary, fmt.Errorf("error reading secondary record %d: %w", position, err)
			}
			if sipm.BoardID < 0 || sipm.BoardID >= m.boardCount {
				summary.BoardViolations++
				summary.ViolationsByBoard[sipm.BoardID]++
				if m.verbosity > 2 {
					message := fmt.Sprintf("Board id %d out of range in secondary record %d", sipm.BoardID, position)
					logger.Info(message, "merge")
				}
				continue
			}
			if len(sipm.HighGain) != m.channelsPerBoard {
				return summary, &ErrChannelCount{Position: position, Got: len(sipm.HighGain), Expected: m.channelsPerBoard}
			}
			if len(sipm.LowGain) != m.channelsPerBoard {
				return summary, &ErrChannelCount{Position: position, Got: len(sipm.LowGain), Expected: m.channelsPerBoard}
			}
			if filled[sipm.BoardID] {
				summary.DuplicateBoards++
			}
			filled[sipm.BoardID] = true
			copy(record.Boards[sipm.BoardID].HighGain, sipm.HighGain)
			copy(record.Boards[sipm.BoardID].LowGain, sipm.LowGain)
			record.TimestampMicros = sipm.TimestampMicros
			contributed = true
		}

		if contributed {
			summary.Matched++
		} else {
			summary.ZeroFilled++
		}

		if err := sink.WriteMerged(record); err != nil {
			return summary, fmt.Errorf("error writing merged event %d: %w", evt, err)
		}
		summary.Events++
	}

	m.state = MergeDone
	return summary, nil
}

// MemorySink keeps the merged records in memory.
type MemorySink struct {
	Records []MergedRecord
}

func (s *MemorySink) WriteMerged(record MergedRecord) error {
	s.Records = append(s.Records, record)
	return nil
}
