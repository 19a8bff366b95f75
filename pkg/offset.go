package merger

import (
	"fmt"
	"math"
)

type OffsetQuality int

const (
	OffsetClean OffsetQuality = iota
	OffsetTied
	OffsetWeak
	OffsetHighCost
	OffsetNoPedestals
)

func (q OffsetQuality) String() string {
	switch q {
	case OffsetClean:
		return "clean"
	case OffsetTied:
		return "tied"
	case OffsetWeak:
		return "weak"
	case OffsetHighCost:
		return "high-cost"
	case OffsetNoPedestals:
		return "no-pedestals"
	default:
		return "unknown"
	}
}

func (q OffsetQuality) Ambiguous() bool {
	return q != OffsetClean
}

type OffsetCost struct {
	Offset int
	Cost   int
}

type OffsetScanOptions struct {
	Window          int
	MaxCostFraction float64
	MinContrast     float64
}

func ScanOptionsFromConfig(config Configuration) OffsetScanOptions {
	return OffsetScanOptions{
		Window:          config.OffsetSearchWindow,
		MaxCostFraction: config.OffsetMaxCostFraction,
		MinContrast:     config.OffsetMinContrast,
	}
}

// OffsetScan is the result of the offset search. Costs has one entry per
// scanned offset, from -Window to +Window.
type OffsetScan struct {
	Offset    int
	Cost      int
	Quality   OffsetQuality
	Costs     []OffsetCost
	Pedestals int
}

// EstimateOffset looks for the shift that moves the pedestal positions onto
// the DAQ positions without SiPM data. For every candidate offset the cost is
// the number of shifted pedestals that still have SiPM data. The lowest cost
// wins, ties go to the smallest |offset| and then to the most negative one.
func EstimateOffset(pattern TriggerPattern, opts OffsetScanOptions) OffsetScan {
	// A negative window scans offset 0 only
	window := max(opts.Window, 0)
	scan := OffsetScan{
		Costs:     make([]OffsetCost, 0, 2*window+1),
		Pedestals: len(pattern.Pedestals),
	}

	for offset := -window; offset <= window; offset++ {
		cost := 0
		for _, pedestal := range pattern.Pedestals {
			if !pattern.InComplement(pedestal + offset) {
				cost++
			}
		}
		scan.Costs = append(scan.Costs, OffsetCost{Offset: offset, Cost: cost})
	}

	best := scan.Costs[0]
	for _, candidate := range scan.Costs[1:] {
		if betterOffset(candidate, best) {
			best = candidate
		}
	}
	scan.Offset = best.Offset
	scan.Cost = best.Cost
	scan.Quality = classifyScan(scan, opts)
	return scan
}

func betterOffset(candidate, best OffsetCost) bool {
	if candidate.Cost != best.Cost {
		return candidate.Cost < best.Cost
	}
	if abs(candidate.Offset) != abs(best.Offset) {
		return abs(candidate.Offset) < abs(best.Offset)
	}
	return candidate.Offset < best.Offset
}

func classifyScan(scan OffsetScan, opts OffsetScanOptions) OffsetQuality {
	if scan.Pedestals == 0 {
		return OffsetNoPedestals
	}

	minima := 0
	runnerUp := math.MaxInt
	for _, c := range scan.Costs {
		if c.Cost == scan.Cost {
			minima++
		} else if c.Cost < runnerUp {
			runnerUp = c.Cost
		}
	}
	if minima > 1 {
		return OffsetTied
	}

	pedestals := float64(scan.Pedestals)
	if float64(scan.Cost) > opts.MaxCostFraction*pedestals {
		return OffsetHighCost
	}
	// A window of a single offset has no runner-up to compare with
	if runnerUp != math.MaxInt && float64(runnerUp-scan.Cost) < opts.MinContrast*pedestals {
		return OffsetWeak
	}
	return OffsetClean
}

func (s OffsetScan) CostAt(offset int) (int, bool) {
	for _, c := range s.Costs {
		if c.Offset == offset {
			return c.Cost, true
		}
	}
	return 0, false
}

func logOffsetScan(scan OffsetScan, runNumber int, verbosity int) {
	if verbosity > 1 {
		for _, c := range scan.Costs {
			message := fmt.Sprintf("Run %d offset %d: %d pedestal triggers where SiPM fired", runNumber, c.Offset, c.Cost)
			logger.Info(message, "offset")
		}
	}
	if scan.Quality.Ambiguous() {
		message := fmt.Sprintf("run %d: offset %d is %s (cost %d over %d pedestals)",
			runNumber, scan.Offset, scan.Quality, scan.Cost, scan.Pedestals)
		logger.Error(message)
		return
	}
	if verbosity > 0 {
		message := fmt.Sprintf("Run %d: minimum value %d occurring for %d offset", runNumber, scan.Cost, scan.Offset)
		logger.Info(message, "offset")
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
