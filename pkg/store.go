package merger

// PrimaryStore gives random access to the DAQ stream. TriggerMasks projects
// the trigger mask of every record without building full records.
type PrimaryStore interface {
	Len() int
	Record(position int) (PrimaryRecord, error)
	TriggerMasks() ([]int64, error)
}

// SecondaryStore gives random access to the SiPM stream. TriggerIDs projects
// the trigger id of every record without building full records.
type SecondaryStore interface {
	Len() int
	Record(position int) (SecondaryRecord, error)
	TriggerIDs() ([]int64, error)
	RunInfo() (SecondaryRunInfo, bool)
}

type PrimaryTable struct {
	records []PrimaryRecord
}

// NewPrimaryTable renumbers the records so Index always matches the position.
func NewPrimaryTable(records []PrimaryRecord) *PrimaryTable {
	table := &PrimaryTable{records: make([]PrimaryRecord, len(records))}
	for i, record := range records {
		record.Index = i
		table.records[i] = record
	}
	return table
}

func (t *PrimaryTable) Len() int {
	return len(t.records)
}

func (t *PrimaryTable) Record(position int) (PrimaryRecord, error) {
	if position < 0 || position >= len(t.records) {
		return PrimaryRecord{}, &ErrRecordRange{Stream: "primary", Position: position, Len: len(t.records)}
	}
	return t.records[position], nil
}

func (t *PrimaryTable) TriggerMasks() ([]int64, error) {
	masks := make([]int64, len(t.records))
	for i, record := range t.records {
		masks[i] = record.TriggerMask
	}
	return masks, nil
}

// Records returns a copy of the stored records.
func (t *PrimaryTable) Records() []PrimaryRecord {
	records := make([]PrimaryRecord, len(t.records))
	copy(records, t.records)
	return records
}

type SecondaryTable struct {
	records []SecondaryRecord
	runInfo *SecondaryRunInfo
}

func NewSecondaryTable(records []SecondaryRecord) *SecondaryTable {
	return &SecondaryTable{records: records}
}

func (t *SecondaryTable) SetRunInfo(info SecondaryRunInfo) {
	t.runInfo = &info
}

func (t *SecondaryTable) Len() int {
	return len(t.records)
}

func (t *SecondaryTable) Record(position int) (SecondaryRecord, error) {
	if position < 0 || position >= len(t.records) {
		return SecondaryRecord{}, &ErrRecordRange{Stream: "secondary", Position: position, Len: len(t.records)}
	}
	return t.records[position], nil
}

func (t *SecondaryTable) TriggerIDs() ([]int64, error) {
	ids := make([]int64, len(t.records))
	for i, record := range t.records {
		ids[i] = record.TriggerID
	}
	return ids, nil
}

func (t *SecondaryTable) RunInfo() (SecondaryRunInfo, bool) {
	if t.runInfo == nil {
		return SecondaryRunInfo{}, false
	}
	return *t.runInfo, true
}
