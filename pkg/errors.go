package merger

import "fmt"

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error { return e.Err }

// ErrCreateGroup represents an error when creating a group.
type ErrCreateGroup struct {
	GroupName string
	Err       error
}

func (e *ErrCreateGroup) Error() string {
	return fmt.Sprintf("error creating group %q: %v", e.GroupName, e.Err)
}

func (e *ErrCreateGroup) Unwrap() error { return e.Err }

// ErrCreateTable represents an error when creating a table.
type ErrCreateTable struct {
	TableName string
	Err       error
}

func (e *ErrCreateTable) Error() string {
	return fmt.Sprintf("error creating table %q: %v", e.TableName, e.Err)
}

func (e *ErrCreateTable) Unwrap() error { return e.Err }

// ErrReadDataset represents an error when reading a dataset from an input file.
type ErrReadDataset struct {
	Dataset string
	Err     error
}

func (e *ErrReadDataset) Error() string {
	return fmt.Sprintf("error reading dataset %q: %v", e.Dataset, e.Err)
}

func (e *ErrReadDataset) Unwrap() error { return e.Err }

// ErrEmptyStream is returned when one of the input streams has no records.
type ErrEmptyStream struct {
	Stream string
}

func (e *ErrEmptyStream) Error() string {
	return fmt.Sprintf("%s stream is empty", e.Stream)
}

// ErrRecordRange is returned when a record position is outside the stream.
type ErrRecordRange struct {
	Stream   string
	Position int
	Len      int
}

func (e *ErrRecordRange) Error() string {
	return fmt.Sprintf("%s record %d out of range [0, %d)", e.Stream, e.Position, e.Len)
}

// ErrChannelCount is returned when a SiPM record does not carry one value per channel.
type ErrChannelCount struct {
	Position int
	Got      int
	Expected int
}

func (e *ErrChannelCount) Error() string {
	return fmt.Sprintf("secondary record %d has %d channels, expected %d", e.Position, e.Got, e.Expected)
}

// ErrAmbiguousOffset is returned when the offset scan does not single out
// one offset and the configuration asks to treat that as fatal.
type ErrAmbiguousOffset struct {
	Offset  int
	Cost    int
	Quality OffsetQuality
}

func (e *ErrAmbiguousOffset) Error() string {
	return fmt.Sprintf("ambiguous offset %d (cost %d): %s", e.Offset, e.Cost, e.Quality)
}

// ErrRun attaches the run number to any error that aborted a run.
type ErrRun struct {
	RunNumber int
	Err       error
}

func (e *ErrRun) Error() string {
	return fmt.Sprintf("run %d: %v", e.RunNumber, e.Err)
}

func (e *ErrRun) Unwrap() error { return e.Err }
