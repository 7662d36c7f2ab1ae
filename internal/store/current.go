package store

import (
	"database/sql"
	"encoding/json"

	apperr "reaper/internal/errors"
	"reaper/internal/model"
)

// SetCurrentJob durably records job as the one the Worker just popped for
// processing, so Recovery can retire it as ABANDONED if the process dies
// mid-job.
func (s *Store) SetCurrentJob(job model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return apperr.Wrap("store.SetCurrentJob", err)
	}
	_, err = s.conn.Exec(
		`INSERT INTO current_job (id, job_data) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET job_data = excluded.job_data`,
		string(data),
	)
	if err != nil {
		return apperr.Wrap("store.SetCurrentJob", apperr.ErrStoreUnavailable)
	}
	return nil
}

// ClearCurrentJob removes the durable current-job record, called once the
// Worker finishes processing it (completed, failed, or abandoned).
func (s *Store) ClearCurrentJob() error {
	if _, err := s.conn.Exec(`DELETE FROM current_job WHERE id = 1`); err != nil {
		return apperr.Wrap("store.ClearCurrentJob", apperr.ErrStoreUnavailable)
	}
	return nil
}

// LoadCurrentJob returns the durable current-job record, if any, left over
// from a prior run.
func (s *Store) LoadCurrentJob() (*model.Job, error) {
	var raw string
	err := s.conn.QueryRow(`SELECT job_data FROM current_job WHERE id = 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap("store.LoadCurrentJob", err)
	}
	var job model.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, apperr.Wrap("store.LoadCurrentJob", err)
	}
	return &job, nil
}
