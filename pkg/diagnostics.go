package merger

// GapHistogram counts the distance between consecutive sorted positions in
// unit bins over [0, GAP_MAX_VAL).
type GapHistogram struct {
	Counts    []int
	Underflow int
	Overflow  int
}

type ScatterPoint struct {
	X int
	Y int
}

// Diagnostics are the plots operators look at to judge the offset scan.
type Diagnostics struct {
	PedestalGaps        GapHistogram
	ComplementGaps      GapHistogram
	PedestalPositions   []ScatterPoint
	ComplementPositions []ScatterPoint
	OffsetScan          []ScatterPoint
}

func NewGapHistogram(sortedPositions []int) GapHistogram {
	histogram := GapHistogram{Counts: make([]int, N_GAP_BINS)}
	binWidth := float64(GAP_MAX_VAL) / float64(N_GAP_BINS)
	for i := 1; i < len(sortedPositions); i++ {
		gap := sortedPositions[i] - sortedPositions[i-1]
		switch {
		case gap < 0:
			histogram.Underflow++
		case gap >= GAP_MAX_VAL:
			histogram.Overflow++
		default:
			histogram.Counts[int(float64(gap)/binWidth)]++
		}
	}
	return histogram
}

func (h GapHistogram) Entries() int {
	total := h.Underflow + h.Overflow
	for _, count := range h.Counts {
		total += count
	}
	return total
}

func BuildDiagnostics(pattern TriggerPattern, scan OffsetScan) Diagnostics {
	diagnostics := Diagnostics{
		PedestalGaps:        NewGapHistogram(pattern.Pedestals),
		ComplementGaps:      NewGapHistogram(pattern.Complement),
		PedestalPositions:   make([]ScatterPoint, len(pattern.Pedestals)),
		ComplementPositions: make([]ScatterPoint, len(pattern.Complement)),
		OffsetScan:          make([]ScatterPoint, len(scan.Costs)),
	}
	for i, p := range pattern.Pedestals {
		diagnostics.PedestalPositions[i] = ScatterPoint{X: p, Y: 2}
	}
	for i, c := range pattern.Complement {
		diagnostics.ComplementPositions[i] = ScatterPoint{X: c, Y: 1}
	}
	for i, c := range scan.Costs {
		diagnostics.OffsetScan[i] = ScatterPoint{X: c.Offset, Y: c.Cost}
	}
	return diagnostics
}
