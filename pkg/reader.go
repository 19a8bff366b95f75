package merger

import (
	"fmt"

	hdf5 "github.com/jmbenlloch/go-hdf5"
)

// PrimaryFile reads the DAQ stream from /DAQ/events. Trigger masks are read
// as a projection, full records are loaded once on first access.
type PrimaryFile struct {
	Filename string
	file     *hdf5.File
	nRecords int
	table    *PrimaryTable
}

func OpenPrimaryFile(filename string) (*PrimaryFile, error) {
	file, err := openFile(filename)
	if err != nil {
		return nil, err
	}
	nRecords, err := tableRows(file, DAQ_GROUP, EVENTS_TABLE)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &PrimaryFile{Filename: filename, file: file, nRecords: nRecords}, nil
}

func (p *PrimaryFile) Len() int {
	return p.nRecords
}

func (p *PrimaryFile) TriggerMasks() ([]int64, error) {
	if p.table != nil {
		return p.table.TriggerMasks()
	}
	rows, err := readTable[triggerMaskHDF5](p.file, DAQ_GROUP, EVENTS_TABLE)
	if err != nil {
		return nil, err
	}
	masks := make([]int64, len(rows))
	for i, row := range rows {
		masks[i] = row.TriggerMask
	}
	return masks, nil
}

func (p *PrimaryFile) load() error {
	if p.table != nil {
		return nil
	}
	rows, err := readTable[daqEventHDF5](p.file, DAQ_GROUP, EVENTS_TABLE)
	if err != nil {
		return err
	}
	records := make([]PrimaryRecord, len(rows))
	for i, row := range rows {
		records[i] = primaryFromHDF5(row)
	}
	p.table = NewPrimaryTable(records)
	p.nRecords = p.table.Len()
	return nil
}

func (p *PrimaryFile) Record(position int) (PrimaryRecord, error) {
	if err := p.load(); err != nil {
		return PrimaryRecord{}, err
	}
	return p.table.Record(position)
}

func (p *PrimaryFile) Records() ([]PrimaryRecord, error) {
	if err := p.load(); err != nil {
		return nil, err
	}
	return p.table.Records(), nil
}

func (p *PrimaryFile) Close() error {
	return p.file.Close()
}

// SecondaryFile reads the SiPM stream from /SiPM/events and the optional
// /SiPM/runInfo table.
type SecondaryFile struct {
	Filename string
	file     *hdf5.File
	nRecords int
	table    *SecondaryTable
	runInfo  *SecondaryRunInfo
}

func OpenSecondaryFile(filename string) (*SecondaryFile, error) {
	file, err := openFile(filename)
	if err != nil {
		return nil, err
	}
	nRecords, err := tableRows(file, SIPM_GROUP, EVENTS_TABLE)
	if err != nil {
		file.Close()
		return nil, err
	}
	secondary := &SecondaryFile{Filename: filename, file: file, nRecords: nRecords}

	// The run info is not written by every converter version
	infos, err := readTable[sipmRunInfoHDF5](file, SIPM_GROUP, RUNINFO_TABLE)
	if err == nil && len(infos) > 0 {
		info := SecondaryRunInfo{
			AcquisitionStartMs: infos[0].acquisitionStartMs,
			Events:             infos[0].nEvents,
			Boards:             infos[0].nBoards,
			AcquisitionMode:    infos[0].acquisitionMode,
		}
		secondary.runInfo = &info
	}
	return secondary, nil
}

func (s *SecondaryFile) Len() int {
	return s.nRecords
}

func (s *SecondaryFile) TriggerIDs() ([]int64, error) {
	if s.table != nil {
		return s.table.TriggerIDs()
	}
	rows, err := readTable[triggerIDHDF5](s.file, SIPM_GROUP, EVENTS_TABLE)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = int64(row.TriggerId)
	}
	return ids, nil
}

func (s *SecondaryFile) load() error {
	if s.table != nil {
		return nil
	}
	rows, err := readTable[sipmEventHDF5](s.file, SIPM_GROUP, EVENTS_TABLE)
	if err != nil {
		return err
	}
	records := make([]SecondaryRecord, len(rows))
	for i, row := range rows {
		records[i] = secondaryFromHDF5(row)
	}
	s.table = NewSecondaryTable(records)
	s.nRecords = len(records)
	return nil
}

func (s *SecondaryFile) Record(position int) (SecondaryRecord, error) {
	if err := s.load(); err != nil {
		return SecondaryRecord{}, err
	}
	return s.table.Record(position)
}

func (s *SecondaryFile) RunInfo() (SecondaryRunInfo, bool) {
	if s.runInfo == nil {
		return SecondaryRunInfo{}, false
	}
	return *s.runInfo, true
}

func (s *SecondaryFile) Close() error {
	return s.file.Close()
}

func primaryFromHDF5(row daqEventHDF5) PrimaryRecord {
	return PrimaryRecord{
		EventNumber: row.EventNumber,
		EventSpill:  row.EventSpill,
		Eventms:     row.Eventms,
		Eventsec:    row.Eventsec,
		Eventmin:    row.Eventmin,
		Eventhour:   row.Eventhour,
		Eventday:    row.Eventday,
		NumOfPhysEv: row.NumOfPhysEv,
		NumOfPedeEv: row.NumOfPedeEv,
		NumOfSpilEv: row.NumOfSpilEv,
		TriggerMask: row.TriggerMask,
		ADCs:        row.ADCs,
		TDCsval:     row.TDCsval,
		TDCscheck:   row.TDCscheck,
	}
}

func primaryToHDF5(record PrimaryRecord) daqEventHDF5 {
	return daqEventHDF5{
		EventNumber: record.EventNumber,
		EventSpill:  record.EventSpill,
		Eventms:     record.Eventms,
		Eventsec:    record.Eventsec,
		Eventmin:    record.Eventmin,
		Eventhour:   record.Eventhour,
		Eventday:    record.Eventday,
		NumOfPhysEv: record.NumOfPhysEv,
		NumOfPedeEv: record.NumOfPedeEv,
		NumOfSpilEv: record.NumOfSpilEv,
		TriggerMask: record.TriggerMask,
		ADCs:        record.ADCs,
		TDCsval:     record.TDCsval,
		TDCscheck:   record.TDCscheck,
	}
}

func secondaryFromHDF5(row sipmEventHDF5) SecondaryRecord {
	record := SecondaryRecord{
		TriggerID:       int64(row.TriggerId),
		BoardID:         int(row.BoardId),
		HighGain:        make([]uint16, N_CHANNELS),
		LowGain:         make([]uint16, N_CHANNELS),
		TimestampMicros: row.TriggerTimeStampUs,
	}
	copy(record.HighGain, row.HighGainADC[:])
	copy(record.LowGain, row.LowGainADC[:])
	return record
}

func secondaryToHDF5(record SecondaryRecord) (sipmEventHDF5, error) {
	if len(record.HighGain) != N_CHANNELS || len(record.LowGain) != N_CHANNELS {
		return sipmEventHDF5{}, fmt.Errorf("SiPM files hold %d channels per board, got %d/%d",
			N_CHANNELS, len(record.HighGain), len(record.LowGain))
	}
	if record.BoardID < 0 || record.BoardID > 255 {
		return sipmEventHDF5{}, fmt.Errorf("board id %d does not fit in the SiPM file format", record.BoardID)
	}
	row := sipmEventHDF5{
		TriggerId:          uint64(record.TriggerID),
		TriggerTimeStampUs: record.TimestampMicros,
		BoardId:            uint8(record.BoardID),
	}
	copy(row.HighGainADC[:], record.HighGain)
	copy(row.LowGainADC[:], record.LowGain)
	return row, nil
}

// WriteSecondaryFile writes a SiPM stream in the layout produced by the SiPM
// converter. Used to prepare inputs for tests and reprocessing.
func WriteSecondaryFile(filename string, records []SecondaryRecord, runInfo *SecondaryRunInfo) (err error) {
	file, err := createFile(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	group, err := createGroup(file, SIPM_GROUP)
	if err != nil {
		return err
	}
	defer group.Close()

	rows := make([]sipmEventHDF5, len(records))
	for i, record := range records {
		rows[i], err = secondaryToHDF5(record)
		if err != nil {
			return fmt.Errorf("secondary record %d: %w", i, err)
		}
	}
	table, err := createTable(group, EVENTS_TABLE, sipmEventHDF5{}, 0)
	if err != nil {
		return err
	}
	defer table.Close()
	if err := writeArrayToTable(table, &rows, 0); err != nil {
		return err
	}

	if runInfo != nil {
		infoTable, err := createTable(group, RUNINFO_TABLE, sipmRunInfoHDF5{}, 0)
		if err != nil {
			return err
		}
		defer infoTable.Close()
		return writeEntryToTable(infoTable, sipmRunInfoFromInfo(*runInfo), 0)
	}
	return nil
}

// WritePrimaryFile writes a DAQ stream in the /DAQ/events layout.
func WritePrimaryFile(filename string, records []PrimaryRecord) (err error) {
	file, err := createFile(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	group, err := createGroup(file, DAQ_GROUP)
	if err != nil {
		return err
	}
	defer group.Close()

	table, err := createTable(group, EVENTS_TABLE, daqEventHDF5{}, 0)
	if err != nil {
		return err
	}
	defer table.Close()

	rows := make([]daqEventHDF5, len(records))
	for i, record := range records {
		rows[i] = primaryToHDF5(record)
	}
	return writeArrayToTable(table, &rows, 0)
}

func sipmRunInfoFromInfo(info SecondaryRunInfo) sipmRunInfoHDF5 {
	return sipmRunInfoHDF5{
		acquisitionStartMs: info.AcquisitionStartMs,
		nEvents:            info.Events,
		nBoards:            info.Boards,
		acquisitionMode:    info.AcquisitionMode,
	}
}
