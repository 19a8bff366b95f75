package merger

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// TriggerPattern holds the trigger sets used to find the offset between the
// DAQ and the SiPM streams.
//
//	Pedestals:  DAQ positions flagged as pedestal triggers
//	Complement: DAQ positions with no SiPM trigger id at zero offset
type TriggerPattern struct {
	PrimaryEvents int
	SecondaryIDs  int
	Pedestals     []int
	Complement    []int
	complementSet map[int]struct{}
}

func (p TriggerPattern) InComplement(position int) bool {
	_, ok := p.complementSet[position]
	return ok
}

// ExtractTriggerPattern only reads the trigger mask of the primary stream and
// the trigger id of the secondary stream.
func ExtractTriggerPattern(primary PrimaryStore, secondary SecondaryStore, pedestalMask int64) (TriggerPattern, error) {
	if primary.Len() == 0 {
		return TriggerPattern{}, &ErrEmptyStream{Stream: "primary"}
	}
	if secondary.Len() == 0 {
		return TriggerPattern{}, &ErrEmptyStream{Stream: "secondary"}
	}

	masks, err := primary.TriggerMasks()
	if err != nil {
		return TriggerPattern{}, fmt.Errorf("error reading trigger masks: %w", err)
	}
	triggerIDs, err := secondary.TriggerIDs()
	if err != nil {
		return TriggerPattern{}, fmt.Errorf("error reading trigger ids: %w", err)
	}

	pattern := TriggerPattern{
		PrimaryEvents: len(masks),
		Pedestals:     make([]int, 0),
		Complement:    make([]int, 0),
		complementSet: make(map[int]struct{}),
	}

	for position, mask := range masks {
		if mask == pedestalMask {
			pattern.Pedestals = append(pattern.Pedestals, position)
		}
	}

	seen := make(map[int64]struct{}, len(triggerIDs))
	for _, id := range triggerIDs {
		seen[id] = struct{}{}
	}
	pattern.SecondaryIDs = len(seen)

	for position := 0; position < len(masks); position++ {
		if _, ok := seen[int64(position)]; !ok {
			pattern.complementSet[position] = struct{}{}
		}
	}
	pattern.Complement = maps.Keys(pattern.complementSet)
	slices.Sort(pattern.Complement)

	return pattern, nil
}
