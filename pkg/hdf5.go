package merger

import (
	"fmt"

	hdf5 "github.com/jmbenlloch/go-hdf5"
)

// Column names of the compound types are the field names.

type daqEventHDF5 struct {
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

type triggerMaskHDF5 struct {
	TriggerMask int64
}

type sipmEventHDF5 struct {
	TriggerId          uint64
	TriggerTimeStampUs float64
	BoardId            uint8
	HighGainADC        [N_CHANNELS]uint16
	LowGainADC         [N_CHANNELS]uint16
}

type triggerIDHDF5 struct {
	TriggerId uint64
}

type sipmRunInfoHDF5 struct {
	acquisitionStartMs uint64
	nEvents            uint64
	nBoards            uint8
	acquisitionMode    uint8
}

type eventDataHDF5 struct {
	evt_number int32
	timestamp  float64
}

type runInfoHDF5 struct {
	run_number        int32
	offset            int32
	offset_cost       int32
	offset_quality    int32
	pedestals         int32
	primary_events    int32
	secondary_records int32
	n_boards          int32
	n_channels        int32
}

type gapHistogramHDF5 struct {
	bin   int32
	count int32
}

type scatterPointHDF5 struct {
	x int32
	y int32
}

const (
	DAQ_GROUP         = "DAQ"
	SIPM_GROUP        = "SiPM"
	RUN_GROUP         = "Run"
	DIAGNOSTICS_GROUP = "Diagnostics"
	EVENTS_TABLE      = "events"
	RUNINFO_TABLE     = "runInfo"
	TABLE_CHUNK       = 32768
	ARRAY_CHUNK_ROWS  = 1024
)

func boardDatasetName(gain string, board int) string {
	return fmt.Sprintf("%s_Board%d", gain, board)
}

func createFile(fname string) (*hdf5.File, error) {
	f, err := hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
	if err != nil {
		return nil, &ErrOpenFile{Filename: fname, Err: err}
	}
	return f, nil
}

func openFile(fname string) (*hdf5.File, error) {
	f, err := hdf5.OpenFile(fname, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, &ErrOpenFile{Filename: fname, Err: err}
	}
	return f, nil
}

func createGroup(file *hdf5.File, groupName string) (*hdf5.Group, error) {
	g, err := file.CreateGroup(groupName)
	if err != nil {
		return nil, &ErrCreateGroup{GroupName: groupName, Err: err}
	}
	return g, nil
}

func newDatasetPropList(chunks []uint, compressionLevel int) (*hdf5.PropList, error) {
	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return nil, err
	}
	if err := plist.SetChunk(chunks); err != nil {
		plist.Close()
		return nil, err
	}
	if compressionLevel > 0 {
		if err := plist.SetDeflate(compressionLevel); err != nil {
			plist.Close()
			return nil, err
		}
	}
	return plist, nil
}

func create2dArray(group *hdf5.Group, name string, nColumns int, dtype *hdf5.Datatype, compressionLevel int) (*hdf5.Dataset, error) {
	dims := []uint{0, uint(nColumns)}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims), uint(nColumns)}
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer fileSpace.Close()

	chunks := []uint{ARRAY_CHUNK_ROWS, uint(nColumns)}
	plist, err := newDatasetPropList(chunks, compressionLevel)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer plist.Close()

	dset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	return dset, nil
}

func createTable(group *hdf5.Group, name string, datatype interface{}, compressionLevel int) (*hdf5.Dataset, error) {
	dims := []uint{0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims)}
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer fileSpace.Close()

	plist, err := newDatasetPropList([]uint{TABLE_CHUNK}, compressionLevel)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	defer plist.Close()

	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}

	dset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		return nil, &ErrCreateTable{TableName: name, Err: err}
	}
	return dset, nil
}

func writeEntryToTable[T any](dataset *hdf5.Dataset, data T, rowsInTable int) error {
	array := []T{data}
	return writeArrayToTable(dataset, &array, rowsInTable)
}

func writeArrayToTable[T any](dataset *hdf5.Dataset, data *[]T, rowsInTable int) error {
	length := uint(len(*data))
	if length == 0 {
		return nil
	}
	dataspace, err := hdf5.CreateSimpleDataspace([]uint{length}, nil)
	if err != nil {
		return err
	}
	defer dataspace.Close()

	// extend
	start := uint(rowsInTable)
	if err := dataset.Resize([]uint{start + length}); err != nil {
		return err
	}
	filespace := dataset.Space()
	defer filespace.Close()

	if err := filespace.SelectHyperslab([]uint{start}, nil, []uint{length}, nil); err != nil {
		return err
	}
	return dataset.WriteSubset(data, dataspace, filespace)
}

// write2dBlock appends nRows rows of nColumns values, data is row-major.
func write2dBlock(dataset *hdf5.Dataset, data *[]uint16, rowsInArray int, nRows int, nColumns int) error {
	if nRows == 0 {
		return nil
	}
	newsize := []uint{uint(rowsInArray + nRows), uint(nColumns)}
	if err := dataset.Resize(newsize); err != nil {
		return err
	}
	filespace := dataset.Space()
	defer filespace.Close()

	start := []uint{uint(rowsInArray), 0}
	count := []uint{uint(nRows), uint(nColumns)}
	if err := filespace.SelectHyperslab(start, nil, count, nil); err != nil {
		return err
	}

	dataspace, err := hdf5.CreateSimpleDataspace(count, nil)
	if err != nil {
		return err
	}
	defer dataspace.Close()

	return dataset.WriteSubset(data, dataspace, filespace)
}

func datasetRows(dataset *hdf5.Dataset) (int, error) {
	space := dataset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return 0, err
	}
	if len(dims) == 0 {
		return 0, nil
	}
	return int(dims[0]), nil
}

// tableRows returns the number of rows of a table without reading it.
func tableRows(file *hdf5.File, groupName string, tableName string) (int, error) {
	path := groupName + "/" + tableName
	group, err := file.OpenGroup(groupName)
	if err != nil {
		return 0, &ErrReadDataset{Dataset: path, Err: err}
	}
	defer group.Close()

	dataset, err := group.OpenDataset(tableName)
	if err != nil {
		return 0, &ErrReadDataset{Dataset: path, Err: err}
	}
	defer dataset.Close()

	rows, err := datasetRows(dataset)
	if err != nil {
		return 0, &ErrReadDataset{Dataset: path, Err: err}
	}
	return rows, nil
}

// readTable reads a whole table. T may hold only some of the columns of the
// table, HDF5 then converts just those.
func readTable[T any](file *hdf5.File, groupName string, tableName string) ([]T, error) {
	path := groupName + "/" + tableName
	group, err := file.OpenGroup(groupName)
	if err != nil {
		return nil, &ErrReadDataset{Dataset: path, Err: err}
	}
	defer group.Close()

	dataset, err := group.OpenDataset(tableName)
	if err != nil {
		return nil, &ErrReadDataset{Dataset: path, Err: err}
	}
	defer dataset.Close()

	rows, err := datasetRows(dataset)
	if err != nil {
		return nil, &ErrReadDataset{Dataset: path, Err: err}
	}
	data := make([]T, rows)
	if rows == 0 {
		return data, nil
	}
	if err := dataset.Read(&data); err != nil {
		return nil, &ErrReadDataset{Dataset: path, Err: err}
	}
	return data, nil
}

func read2dArray(file *hdf5.File, groupName string, name string, nColumns int) ([]uint16, int, error) {
	path := groupName + "/" + name
	group, err := file.OpenGroup(groupName)
	if err != nil {
		return nil, 0, &ErrReadDataset{Dataset: path, Err: err}
	}
	defer group.Close()

	dataset, err := group.OpenDataset(name)
	if err != nil {
		return nil, 0, &ErrReadDataset{Dataset: path, Err: err}
	}
	defer dataset.Close()

	rows, err := datasetRows(dataset)
	if err != nil {
		return nil, 0, &ErrReadDataset{Dataset: path, Err: err}
	}
	data := make([]uint16, rows*nColumns)
	if rows == 0 {
		return data, 0, nil
	}
	if err := dataset.Read(&data); err != nil {
		return nil, 0, &ErrReadDataset{Dataset: path, Err: err}
	}
	return data, rows, nil
}
