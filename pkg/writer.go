package merger

import (
	"errors"
	"fmt"

	hdf5 "github.com/jmbenlloch/go-hdf5"
)

const MERGED_FLUSH_SIZE = 1000

var ErrNoEventLayout = errors.New("file was created without DAQ and SiPM event tables")

// Writer creates the merged file: the DAQ events cloned in /DAQ, the SiPM
// data aligned to them in /SiPM, the offset scan plots in /Diagnostics and
// the run information in /Run.
type Writer struct {
	File              *hdf5.File
	Filename          string
	CompressionLevel  int
	BoardCount        int
	ChannelsPerBoard  int
	DAQGroup          *hdf5.Group
	SiPMGroup         *hdf5.Group
	RunGroup          *hdf5.Group
	DiagnosticsGroup  *hdf5.Group
	DAQTable          *hdf5.Dataset
	SiPMRunInfoTable  *hdf5.Dataset
	EventTable        *hdf5.Dataset
	RunInfoTable      *hdf5.Dataset
	HighGainArrays    []*hdf5.Dataset
	LowGainArrays     []*hdf5.Dataset
	DiagnosticsTables []*hdf5.Dataset
	EvtCounter        int
	DAQCounter        int
	pending           []MergedRecord
}

func NewWriter(filename string, config Configuration) (*Writer, error) {
	return newWriter(filename, config, true)
}

// NewDiagnosticsWriter creates a file holding only /Run and /Diagnostics,
// for runs where the merge is skipped.
func NewDiagnosticsWriter(filename string, config Configuration) (*Writer, error) {
	return newWriter(filename, config, false)
}

func newWriter(filename string, config Configuration, withEvents bool) (*Writer, error) {
	writer := &Writer{
		Filename:         filename,
		CompressionLevel: config.CompressionLevel,
		BoardCount:       config.BoardCount,
		ChannelsPerBoard: config.ChannelsPerBoard,
		pending:          make([]MergedRecord, 0, MERGED_FLUSH_SIZE),
	}
	if config.Verbosity > 1 {
		logger.Info(fmt.Sprintf("Creating file: %s", filename), "writer")
	}

	var err error
	writer.File, err = createFile(filename)
	if err != nil {
		return nil, err
	}
	err = writer.createRunLayout()
	if err == nil && withEvents {
		err = writer.createEventLayout()
	}
	if err != nil {
		writer.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) createRunLayout() error {
	var err error
	if w.RunGroup, err = createGroup(w.File, RUN_GROUP); err != nil {
		return err
	}
	if w.DiagnosticsGroup, err = createGroup(w.File, DIAGNOSTICS_GROUP); err != nil {
		return err
	}
	w.RunInfoTable, err = createTable(w.RunGroup, RUNINFO_TABLE, runInfoHDF5{}, w.CompressionLevel)
	return err
}

func (w *Writer) createEventLayout() error {
	var err error
	if w.DAQGroup, err = createGroup(w.File, DAQ_GROUP); err != nil {
		return err
	}
	if w.SiPMGroup, err = createGroup(w.File, SIPM_GROUP); err != nil {
		return err
	}
	if w.DAQTable, err = createTable(w.DAQGroup, EVENTS_TABLE, daqEventHDF5{}, w.CompressionLevel); err != nil {
		return err
	}
	if w.EventTable, err = createTable(w.SiPMGroup, EVENTS_TABLE, eventDataHDF5{}, w.CompressionLevel); err != nil {
		return err
	}
	w.HighGainArrays = make([]*hdf5.Dataset, w.BoardCount)
	w.LowGainArrays = make([]*hdf5.Dataset, w.BoardCount)
	for board := 0; board < w.BoardCount; board++ {
		w.HighGainArrays[board], err = create2dArray(w.SiPMGroup, boardDatasetName("HG", board),
			w.ChannelsPerBoard, hdf5.T_NATIVE_UINT16, w.CompressionLevel)
		if err != nil {
			return err
		}
		w.LowGainArrays[board], err = create2dArray(w.SiPMGroup, boardDatasetName("LG", board),
			w.ChannelsPerBoard, hdf5.T_NATIVE_UINT16, w.CompressionLevel)
		if err != nil {
			return err
		}
	}
	return nil
}

// WritePrimary clones the DAQ records unchanged.
func (w *Writer) WritePrimary(records []PrimaryRecord) error {
	if w.DAQTable == nil {
		return ErrNoEventLayout
	}
	rows := make([]daqEventHDF5, len(records))
	for i, record := range records {
		rows[i] = primaryToHDF5(record)
	}
	if err := writeArrayToTable(w.DAQTable, &rows, w.DAQCounter); err != nil {
		return fmt.Errorf("error writing DAQ events: %w", err)
	}
	w.DAQCounter += len(rows)
	return nil
}

func (w *Writer) WriteSecondaryRunInfo(info SecondaryRunInfo) error {
	if w.SiPMGroup == nil {
		return ErrNoEventLayout
	}
	var err error
	w.SiPMRunInfoTable, err = createTable(w.SiPMGroup, RUNINFO_TABLE, sipmRunInfoHDF5{}, w.CompressionLevel)
	if err != nil {
		return err
	}
	return writeEntryToTable(w.SiPMRunInfoTable, sipmRunInfoFromInfo(info), 0)
}

func (w *Writer) WriteRunInfo(runNumber int, scan OffsetScan, primaryEvents int, secondaryRecords int) error {
	entry := runInfoHDF5{
		run_number:        int32(runNumber),
		offset:            int32(scan.Offset),
		offset_cost:       int32(scan.Cost),
		offset_quality:    int32(scan.Quality),
		pedestals:         int32(scan.Pedestals),
		primary_events:    int32(primaryEvents),
		secondary_records: int32(secondaryRecords),
		n_boards:          int32(w.BoardCount),
		n_channels:        int32(w.ChannelsPerBoard),
	}
	return writeEntryToTable(w.RunInfoTable, entry, 0)
}

func (w *Writer) WriteDiagnostics(diagnostics Diagnostics) error {
	histograms := []struct {
		name      string
		histogram GapHistogram
	}{
		{"pedestalGaps", diagnostics.PedestalGaps},
		{"complementGaps", diagnostics.ComplementGaps},
	}
	for _, h := range histograms {
		if err := writeDiagnosticsTable(w, h.name, histogramRows(h.histogram)); err != nil {
			return err
		}
	}

	scatters := []struct {
		name   string
		points []ScatterPoint
	}{
		{"pedestalPositions", diagnostics.PedestalPositions},
		{"complementPositions", diagnostics.ComplementPositions},
		{"offsetScan", diagnostics.OffsetScan},
	}
	for _, s := range scatters {
		if err := writeDiagnosticsTable(w, s.name, scatterRows(s.points)); err != nil {
			return err
		}
	}
	return nil
}

func writeDiagnosticsTable[T any](w *Writer, name string, rows []T) error {
	var datatype T
	table, err := createTable(w.DiagnosticsGroup, name, datatype, w.CompressionLevel)
	if err != nil {
		return err
	}
	w.DiagnosticsTables = append(w.DiagnosticsTables, table)
	if err := writeArrayToTable(table, &rows, 0); err != nil {
		return fmt.Errorf("error writing diagnostics %s: %w", name, err)
	}
	return nil
}

// Underflow is stored as bin -1 and overflow as bin N_GAP_BINS.
func histogramRows(h GapHistogram) []gapHistogramHDF5 {
	rows := make([]gapHistogramHDF5, 0, len(h.Counts)+2)
	for bin, count := range h.Counts {
		rows = append(rows, gapHistogramHDF5{bin: int32(bin), count: int32(count)})
	}
	rows = append(rows, gapHistogramHDF5{bin: -1, count: int32(h.Underflow)})
	rows = append(rows, gapHistogramHDF5{bin: int32(len(h.Counts)), count: int32(h.Overflow)})
	return rows
}

func scatterRows(points []ScatterPoint) []scatterPointHDF5 {
	rows := make([]scatterPointHDF5, len(points))
	for i, p := range points {
		rows[i] = scatterPointHDF5{x: int32(p.X), y: int32(p.Y)}
	}
	return rows
}

// WriteMerged buffers the record, blocks of MERGED_FLUSH_SIZE events are
// written at once.
func (w *Writer) WriteMerged(record MergedRecord) error {
	if w.EventTable == nil {
		return ErrNoEventLayout
	}
	if len(record.Boards) != w.BoardCount {
		return fmt.Errorf("merged event %d has %d boards, file has %d", record.EventNumber, len(record.Boards), w.BoardCount)
	}
	w.pending = append(w.pending, record)
	if len(w.pending) >= MERGED_FLUSH_SIZE {
		return w.Flush()
	}
	return nil
}

func (w *Writer) Flush() error {
	nEvents := len(w.pending)
	if nEvents == 0 {
		return nil
	}

	events := make([]eventDataHDF5, nEvents)
	for i, record := range w.pending {
		events[i] = eventDataHDF5{
			evt_number: int32(record.EventNumber),
			timestamp:  record.TimestampMicros,
		}
	}
	if err := writeArrayToTable(w.EventTable, &events, w.EvtCounter); err != nil {
		return fmt.Errorf("error writing event table: %w", err)
	}

	nChannels := w.ChannelsPerBoard
	for board := 0; board < w.BoardCount; board++ {
		highGain := make([]uint16, nEvents*nChannels)
		lowGain := make([]uint16, nEvents*nChannels)
		for i, record := range w.pending {
			copy(highGain[i*nChannels:(i+1)*nChannels], record.Boards[board].HighGain)
			copy(lowGain[i*nChannels:(i+1)*nChannels], record.Boards[board].LowGain)
		}
		if err := write2dBlock(w.HighGainArrays[board], &highGain, w.EvtCounter, nEvents, nChannels); err != nil {
			return fmt.Errorf("error writing %s: %w", boardDatasetName("HG", board), err)
		}
		if err := write2dBlock(w.LowGainArrays[board], &lowGain, w.EvtCounter, nEvents, nChannels); err != nil {
			return fmt.Errorf("error writing %s: %w", boardDatasetName("LG", board), err)
		}
	}

	w.EvtCounter += nEvents
	w.pending = w.pending[:0]
	return nil
}

func (w *Writer) Close() error {
	if w.Filename != "" {
		logger.Info(fmt.Sprintf("Closing file hdf writer %s", w.Filename), "writer")
	}
	var errs []error

	if w.File != nil {
		if err := w.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("error flushing merged events: %w", err))
		}
	}

	closeDataset := func(dset *hdf5.Dataset, name string) {
		if dset == nil {
			return
		}
		if err := dset.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s: %w", name, err))
		}
	}
	closeGroup := func(group *hdf5.Group, name string) {
		if group == nil {
			return
		}
		if err := group.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing %s group: %w", name, err))
		}
	}

	closeDataset(w.DAQTable, "DAQ events table")
	closeDataset(w.SiPMRunInfoTable, "SiPM run info table")
	closeDataset(w.EventTable, "event table")
	closeDataset(w.RunInfoTable, "run info table")
	for board := range w.HighGainArrays {
		closeDataset(w.HighGainArrays[board], boardDatasetName("HG", board))
	}
	for board := range w.LowGainArrays {
		closeDataset(w.LowGainArrays[board], boardDatasetName("LG", board))
	}
	for _, table := range w.DiagnosticsTables {
		closeDataset(table, "diagnostics table")
	}
	closeGroup(w.DAQGroup, DAQ_GROUP)
	closeGroup(w.SiPMGroup, SIPM_GROUP)
	closeGroup(w.RunGroup, RUN_GROUP)
	closeGroup(w.DiagnosticsGroup, DIAGNOSTICS_GROUP)
	if w.File != nil {
		if err := w.File.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing file: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ReadMergedFile reads back the SiPM events of a merged file.
func ReadMergedFile(filename string) ([]MergedRecord, error) {
	file, err := openFile(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	infos, err := readTable[runInfoHDF5](file, RUN_GROUP, RUNINFO_TABLE)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, &ErrReadDataset{Dataset: RUN_GROUP + "/" + RUNINFO_TABLE, Err: errors.New("no run info")}
	}
	nBoards := int(infos[0].n_boards)
	nChannels := int(infos[0].n_channels)

	events, err := readTable[eventDataHDF5](file, SIPM_GROUP, EVENTS_TABLE)
	if err != nil {
		return nil, err
	}
	records := make([]MergedRecord, len(events))
	for i, evt := range events {
		records[i] = NewMergedRecord(int(evt.evt_number), nBoards, nChannels)
		records[i].TimestampMicros = evt.timestamp
	}

	for board := 0; board < nBoards; board++ {
		for _, gain := range []string{"HG", "LG"} {
			data, rows, err := read2dArray(file, SIPM_GROUP, boardDatasetName(gain, board), nChannels)
			if err != nil {
				return nil, err
			}
			if rows != len(records) {
				return nil, &ErrReadDataset{
					Dataset: SIPM_GROUP + "/" + boardDatasetName(gain, board),
					Err:     fmt.Errorf("%d rows, expected %d", rows, len(records)),
				}
			}
			for i := range records {
				target := records[i].Boards[board].HighGain
				if gain == "LG" {
					target = records[i].Boards[board].LowGain
				}
				copy(target, data[i*nChannels:(i+1)*nChannels])
			}
		}
	}
	return records, nil
}

// ReadRunInfo returns the run number, offset and offset quality stored in a merged file.
func ReadRunInfo(filename string) (runNumber int, offset int, quality OffsetQuality, err error) {
	file, err := openFile(filename)
	if err != nil {
		return 0, 0, 0, err
	}
	defer file.Close()

	infos, err := readTable[runInfoHDF5](file, RUN_GROUP, RUNINFO_TABLE)
	if err != nil {
		return 0, 0, 0, err
	}
	if len(infos) == 0 {
		return 0, 0, 0, &ErrReadDataset{Dataset: RUN_GROUP + "/" + RUNINFO_TABLE, Err: errors.New("no run info")}
	}
	return int(infos[0].run_number), int(infos[0].offset), OffsetQuality(infos[0].offset_quality), nil
}
