package merger

// Pedestal triggers are flagged with this mask value in the DAQ stream.
const PEDESTAL_TRIGGER_MASK = 6

const (
	N_CHANNELS  = 64
	N_BOARDS    = 5
	N_DAQ_ADCS  = 64
	N_DAQ_TDCS  = 48
	N_GAP_BINS  = 100
	GAP_MAX_VAL = 100
)

// PrimaryRecord is one entry of the DAQ stream. Index is the position of the
// record in the stream, everything else is passed through untouched.
type PrimaryRecord struct {
	Index       int
	EventNumber int32
	EventSpill  int32
	Eventms     int32
	Eventsec    int32
	Eventmin    int32
	Eventhour   int32
	Eventday    int32
	NumOfPhysEv int32
	NumOfPedeEv int32
	NumOfSpilEv int32
	TriggerMask int64
	ADCs        [N_DAQ_ADCS]int32
	TDCsval     [N_DAQ_TDCS]int32
	TDCscheck   [N_DAQ_TDCS]int32
}

func (r PrimaryRecord) IsPedestal(pedestalMask int64) bool {
	return r.TriggerMask == pedestalMask
}

// SecondaryRecord is the readout of one SiPM board for one trigger.
type SecondaryRecord struct {
	TriggerID       int64
	BoardID         int
	HighGain        []uint16
	LowGain         []uint16
	TimestampMicros float64
}

// SecondaryRunInfo is the acquisition metadata written by the SiPM converter.
type SecondaryRunInfo struct {
	AcquisitionStartMs uint64
	Events             uint64
	Boards             uint8
	AcquisitionMode    uint8
}

type BoardData struct {
	HighGain []uint16
	LowGain  []uint16
}

// MergedRecord is the SiPM information aligned to one DAQ event.
type MergedRecord struct {
	EventNumber     int
	TimestampMicros float64
	Boards          []BoardData
}

func NewMergedRecord(eventNumber int, nBoards int, nChannels int) MergedRecord {
	record := MergedRecord{
		EventNumber: eventNumber,
		Boards:      make([]BoardData, nBoards),
	}
	for i := range record.Boards {
		record.Boards[i] = BoardData{
			HighGain: make([]uint16, nChannels),
			LowGain:  make([]uint16, nChannels),
		}
	}
	return record
}

// IsEmpty reports whether no SiPM board contributed to the record.
func (m MergedRecord) IsEmpty() bool {
	if m.TimestampMicros != 0 {
		return false
	}
	for _, board := range m.Boards {
		for ch := range board.HighGain {
			if board.HighGain[ch] != 0 || board.LowGain[ch] != 0 {
				return false
			}
		}
	}
	return true
}
