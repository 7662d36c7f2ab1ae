package store

import (
	"encoding/json"

	apperr "reaper/internal/errors"
	"reaper/internal/model"
)

// PersistQueue replaces the entire queue table with jobs, in order, inside
// a single transaction.
func (s *Store) PersistQueue(jobs []model.Job) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return apperr.Wrap("store.PersistQueue", apperr.ErrStoreUnavailable)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM queue`); err != nil {
		return apperr.Wrap("store.PersistQueue", apperr.ErrStoreUnavailable)
	}

	stmt, err := tx.Prepare(`INSERT INTO queue (job_data, queue_order) VALUES (?, ?)`)
	if err != nil {
		return apperr.Wrap("store.PersistQueue", apperr.ErrStoreUnavailable)
	}
	defer stmt.Close()

	for i, job := range jobs {
		data, err := json.Marshal(job)
		if err != nil {
			return apperr.Wrap("store.PersistQueue", err)
		}
		if _, err := stmt.Exec(string(data), i); err != nil {
			return apperr.Wrap("store.PersistQueue", apperr.ErrStoreUnavailable)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap("store.PersistQueue", apperr.ErrStoreUnavailable)
	}
	return nil
}

// LoadQueue returns the persisted queue in queue_order.
func (s *Store) LoadQueue() ([]model.Job, error) {
	rows, err := s.conn.Query(`SELECT job_data FROM queue ORDER BY queue_order ASC`)
	if err != nil {
		return nil, apperr.Wrap("store.LoadQueue", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, apperr.Wrap("store.LoadQueue", err)
		}
		var job model.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, apperr.Wrap("store.LoadQueue", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
