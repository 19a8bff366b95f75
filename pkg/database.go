package merger

import (
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx" //make alias name the package to sqlx
)

// The run registry keeps one row per processing attempt so that runs with an
// ambiguous offset or skipped SiPM records can be found and re-processed.

const runRegistrySchema = `CREATE TABLE IF NOT EXISTS MergeRuns (
	ProcessingID      VARCHAR(36) NOT NULL PRIMARY KEY,
	RunNumber         INTEGER NOT NULL,
	OutputFile        VARCHAR(512) NOT NULL,
	EvtOffset         INTEGER NOT NULL,
	OffsetCost        INTEGER NOT NULL,
	OffsetQuality     VARCHAR(16) NOT NULL,
	Pedestals         INTEGER NOT NULL,
	PrimaryEvents     INTEGER NOT NULL,
	SecondaryRecords  INTEGER NOT NULL,
	MergedEvents      INTEGER NOT NULL,
	ZeroFilledEvents  INTEGER NOT NULL,
	BoardViolations   INTEGER NOT NULL,
	DuplicateBoards   INTEGER NOT NULL,
	Skipped           BOOLEAN NOT NULL,
	DurationMs        INTEGER NOT NULL,
	ProcessedAt       TIMESTAMP NOT NULL
)`

type RunRegistryEntry struct {
	ProcessingID     string    `db:"ProcessingID"`
	RunNumber        int       `db:"RunNumber"`
	OutputFile       string    `db:"OutputFile"`
	Offset           int       `db:"EvtOffset"`
	OffsetCost       int       `db:"OffsetCost"`
	OffsetQuality    string    `db:"OffsetQuality"`
	Pedestals        int       `db:"Pedestals"`
	PrimaryEvents    int       `db:"PrimaryEvents"`
	SecondaryRecords int       `db:"SecondaryRecords"`
	MergedEvents     int       `db:"MergedEvents"`
	ZeroFilledEvents int       `db:"ZeroFilledEvents"`
	BoardViolations  int       `db:"BoardViolations"`
	DuplicateBoards  int       `db:"DuplicateBoards"`
	Skipped          bool      `db:"Skipped"`
	DurationMs       int64     `db:"DurationMs"`
	ProcessedAt      time.Time `db:"ProcessedAt"`
}

func ConnectToDatabase(user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	db, err := sqlx.Connect("mysql", dbURI)
	return db, err
}

func CreateRunRegistry(db *sqlx.DB) error {
	if _, err := db.Exec(runRegistrySchema); err != nil {
		return fmt.Errorf("error creating run registry: %w", err)
	}
	return nil
}

func NewRunRegistryEntry(summary RunSummary, processedAt time.Time) RunRegistryEntry {
	return RunRegistryEntry{
		ProcessingID:     summary.ProcessingID,
		RunNumber:        summary.RunNumber,
		OutputFile:       summary.OutputFile,
		Offset:           summary.Offset,
		OffsetCost:       summary.OffsetCost,
		OffsetQuality:    summary.OffsetQuality.String(),
		Pedestals:        summary.Pedestals,
		PrimaryEvents:    summary.PrimaryEvents,
		SecondaryRecords: summary.SecondaryRecords,
		MergedEvents:     summary.Merge.Events,
		ZeroFilledEvents: summary.Merge.ZeroFilled,
		BoardViolations:  summary.Merge.BoardViolations,
		DuplicateBoards:  summary.Merge.DuplicateBoards,
		Skipped:          summary.Skipped,
		DurationMs:       summary.Duration.Milliseconds(),
		ProcessedAt:      processedAt.UTC(),
	}
}

func SaveRunSummary(db *sqlx.DB, summary RunSummary) error {
	return SaveRunRegistryEntry(db, NewRunRegistryEntry(summary, time.Now()))
}

func SaveRunRegistryEntry(db *sqlx.DB, entry RunRegistryEntry) error {
	query := `INSERT INTO MergeRuns (ProcessingID, RunNumber, OutputFile, EvtOffset, OffsetCost,
		OffsetQuality, Pedestals, PrimaryEvents, SecondaryRecords, MergedEvents, ZeroFilledEvents,
		BoardViolations, DuplicateBoards, Skipped, DurationMs, ProcessedAt)
		VALUES (:ProcessingID, :RunNumber, :OutputFile, :EvtOffset, :OffsetCost,
		:OffsetQuality, :Pedestals, :PrimaryEvents, :SecondaryRecords, :MergedEvents, :ZeroFilledEvents,
		:BoardViolations, :DuplicateBoards, :Skipped, :DurationMs, :ProcessedAt)`
	if _, err := db.NamedExec(query, entry); err != nil {
		return fmt.Errorf("error saving run %d summary: %w", entry.RunNumber, err)
	}
	return nil
}

// GetRunHistory returns every processing attempt of a run, oldest first.
func GetRunHistory(db *sqlx.DB, runNumber int) ([]RunRegistryEntry, error) {
	query := db.Rebind("SELECT * FROM MergeRuns WHERE RunNumber = ? ORDER BY ProcessedAt, ProcessingID")
	rows, err := db.Queryx(query, runNumber)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	entries := make([]RunRegistryEntry, 0)
	for rows.Next() {
		entry := RunRegistryEntry{}
		if err := rows.StructScan(&entry); err != nil {
			return nil, fmt.Errorf("error scanning DB row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetAmbiguousRuns lists the runs whose latest attempt did not give a clean offset.
func GetAmbiguousRuns(db *sqlx.DB) ([]RunRegistryEntry, error) {
	query := db.Rebind(`SELECT m.* FROM MergeRuns m
		WHERE m.OffsetQuality <> ?
		AND m.ProcessedAt = (SELECT MAX(l.ProcessedAt) FROM MergeRuns l WHERE l.RunNumber = m.RunNumber)
		ORDER BY m.RunNumber`)
	entries := make([]RunRegistryEntry, 0)
	if err := db.Select(&entries, query, OffsetClean.String()); err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	return entries, nil
}
