package indexdb

import (
	"database/sql"
	"encoding/json"
	"errors"

	"foobartory.ai/internal/sim/tuning"
)

// RunRow is the summary recorded when a run terminates.
type RunRow struct {
	RunID     string
	FinalTick uint64
	Digest    string
	Money     int
	Robots    int
}

// TickCount returns the number of indexed ticks for runID.
func (s *SQLiteIndex) TickCount(runID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM ticks WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// Run returns the terminal summary of runID. ok is false while the run has
// not finished.
func (s *SQLiteIndex) Run(runID string) (row RunRow, ok bool, err error) {
	var tick int64
	err = s.db.QueryRow(
		`SELECT run_id, final_tick, digest, money, robots FROM runs WHERE run_id = ?`, runID,
	).Scan(&row.RunID, &tick, &row.Digest, &row.Money, &row.Robots)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRow{}, false, nil
	}
	if err != nil {
		return RunRow{}, false, err
	}
	row.FinalTick = uint64(tick)
	return row, true, nil
}

// RobotEvents counts the indexed events of one robot by type.
func (s *SQLiteIndex) RobotEvents(runID string, robot int) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT type, COUNT(*) FROM events WHERE run_id = ? AND robot = ? GROUP BY type`, runID, robot,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		out[typ] = n
	}
	return out, rows.Err()
}

// LatestSnapshot returns the path of the newest indexed snapshot of runID.
func (s *SQLiteIndex) LatestSnapshot(runID string) (string, bool, error) {
	var path string
	err := s.db.QueryRow(
		`SELECT path FROM snapshots WHERE run_id = ? ORDER BY tick DESC LIMIT 1`, runID,
	).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return path, true, nil
}

// Tuning returns the tuning recorded for runID by UpsertTuning.
func (s *SQLiteIndex) Tuning(runID string) (tuning.Tuning, bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT json FROM tuning WHERE run_id = ?`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return tuning.Tuning{}, false, nil
	}
	if err != nil {
		return tuning.Tuning{}, false, err
	}
	var t tuning.Tuning
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return tuning.Tuning{}, false, err
	}
	return t, true, nil
}
