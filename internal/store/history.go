package store

import (
	"database/sql"
	"encoding/json"
	"strings"

	apperr "reaper/internal/errors"
	"reaper/internal/model"
)

// InsertHistory inserts entry and returns the assigned log_id.
func (s *Store) InsertHistory(entry model.HistoryEntry) (int, error) {
	filenames, err := json.Marshal(entry.Filenames)
	if err != nil {
		return 0, apperr.Wrap("store.InsertHistory", err)
	}
	jobData, err := json.Marshal(entry.JobData)
	if err != nil {
		return 0, apperr.Wrap("store.InsertHistory", err)
	}

	res, err := s.conn.Exec(
		`INSERT INTO history (url, title, folder, filenames, job_data, status, log_path, error_summary, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.URL, entry.Title, entry.Folder, string(filenames), string(jobData),
		string(entry.Status), entry.LogPath, entry.ErrorSummary, entry.Timestamp,
	)
	if err != nil {
		return 0, apperr.Wrap("store.InsertHistory", apperr.ErrStoreUnavailable)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Wrap("store.InsertHistory", err)
	}
	return int(id), nil
}

// UpdateHistory applies a partial field update to an existing row.
// Supported keys: status, error_summary, log_path, filenames, title, folder.
func (s *Store) UpdateHistory(logID int, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	var setClauses []string
	var args []any
	for k, v := range fields {
		switch k {
		case "status", "error_summary", "log_path", "title", "folder":
			setClauses = append(setClauses, k+" = ?")
			args = append(args, v)
		case "filenames":
			data, err := json.Marshal(v)
			if err != nil {
				return apperr.Wrap("store.UpdateHistory", err)
			}
			setClauses = append(setClauses, "filenames = ?")
			args = append(args, string(data))
		}
	}
	if len(setClauses) == 0 {
		return nil
	}
	args = append(args, logID)

	query := "UPDATE history SET " + strings.Join(setClauses, ", ") + " WHERE log_id = ?"
	if _, err := s.conn.Exec(query, args...); err != nil {
		return apperr.Wrap("store.UpdateHistory", apperr.ErrStoreUnavailable)
	}
	return nil
}

// DeleteHistory removes a row and returns its prior log_path, if any.
func (s *Store) DeleteHistory(logID int) (string, error) {
	var logPath sql.NullString
	err := s.conn.QueryRow(`SELECT log_path FROM history WHERE log_id = ?`, logID).Scan(&logPath)
	if err == sql.ErrNoRows {
		return "", apperr.New("store.DeleteHistory", apperr.ErrNotFound)
	}
	if err != nil {
		return "", apperr.Wrap("store.DeleteHistory", err)
	}

	if _, err := s.conn.Exec(`DELETE FROM history WHERE log_id = ?`, logID); err != nil {
		return "", apperr.Wrap("store.DeleteHistory", apperr.ErrStoreUnavailable)
	}
	return logPath.String, nil
}

// ClearHistory deletes every history row and returns the list of log_paths
// that existed, so the caller can remove the on-disk log files.
func (s *Store) ClearHistory() ([]string, error) {
	rows, err := s.conn.Query(`SELECT log_path FROM history`)
	if err != nil {
		return nil, apperr.Wrap("store.ClearHistory", err)
	}
	var paths []string
	for rows.Next() {
		var p sql.NullString
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, apperr.Wrap("store.ClearHistory", err)
		}
		if p.Valid && p.String != "" {
			paths = append(paths, p.String)
		}
	}
	rows.Close()

	if _, err := s.conn.Exec(`DELETE FROM history`); err != nil {
		return nil, apperr.Wrap("store.ClearHistory", apperr.ErrStoreUnavailable)
	}
	return paths, nil
}

// GetHistory returns one history row.
func (s *Store) GetHistory(logID int) (*model.HistoryEntry, error) {
	row := s.conn.QueryRow(
		`SELECT log_id, url, title, folder, filenames, job_data, status, log_path, error_summary, timestamp
		 FROM history WHERE log_id = ?`, logID)
	return scanHistoryRow(row)
}

// ListHistory returns every history row, most recent first.
func (s *Store) ListHistory() ([]model.HistoryEntry, error) {
	rows, err := s.conn.Query(
		`SELECT log_id, url, title, folder, filenames, job_data, status, log_path, error_summary, timestamp
		 FROM history ORDER BY timestamp DESC`)
	if err != nil {
		return nil, apperr.Wrap("store.ListHistory", err)
	}
	defer rows.Close()

	var out []model.HistoryEntry
	for rows.Next() {
		entry, err := scanHistoryRowSet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanHistoryRow(row *sql.Row) (*model.HistoryEntry, error) {
	return scanHistoryRowSet(row)
}

func scanHistoryRowSet(row scannable) (*model.HistoryEntry, error) {
	var e model.HistoryEntry
	var filenames, jobData string
	var status string
	var errorSummary, logPath sql.NullString

	err := row.Scan(&e.LogID, &e.URL, &e.Title, &e.Folder, &filenames, &jobData, &status, &logPath, &errorSummary, &e.Timestamp)
	if err == sql.ErrNoRows {
		return nil, apperr.New("store.GetHistory", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Wrap("store.GetHistory", err)
	}

	e.Status = model.HistoryStatus(status)
	e.LogPath = logPath.String
	e.ErrorSummary = errorSummary.String

	if filenames != "" {
		if err := json.Unmarshal([]byte(filenames), &e.Filenames); err != nil {
			return nil, apperr.Wrap("store.GetHistory", err)
		}
	}
	if jobData != "" {
		if err := json.Unmarshal([]byte(jobData), &e.JobData); err != nil {
			return nil, apperr.Wrap("store.GetHistory", err)
		}
	}
	return &e, nil
}
