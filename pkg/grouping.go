package merger

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// SecondaryIndex maps a SiPM trigger id to the positions of the board records
// carrying it, in stream order. It is not modified after construction.
type SecondaryIndex struct {
	positions map[int64][]int
}

func BuildSecondaryIndex(secondary SecondaryStore) (*SecondaryIndex, error) {
	triggerIDs, err := secondary.TriggerIDs()
	if err != nil {
		return nil, fmt.Errorf("error reading trigger ids: %w", err)
	}

	index := &SecondaryIndex{positions: make(map[int64][]int)}
	for position, id := range triggerIDs {
		index.positions[id] = append(index.positions[id], position)
	}
	return index, nil
}

// Lookup returns the positions for a trigger id. The slice must not be modified.
func (s *SecondaryIndex) Lookup(triggerID int64) ([]int, bool) {
	positions, ok := s.positions[triggerID]
	return positions, ok
}

// Len is the number of distinct trigger ids.
func (s *SecondaryIndex) Len() int {
	return len(s.positions)
}

func (s *SecondaryIndex) TriggerIDs() []int64 {
	ids := maps.Keys(s.positions)
	slices.Sort(ids)
	return ids
}
