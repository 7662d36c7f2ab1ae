package store

import (
	"database/sql"
	"encoding/json"

	apperr "reaper/internal/errors"
	"reaper/internal/model"
)

// UpsertScythe inserts s if ID is zero, otherwise replaces the existing row.
func (s *Store) UpsertScythe(sc *model.Scythe) error {
	jobData, err := json.Marshal(sc.JobData)
	if err != nil {
		return apperr.Wrap("store.UpsertScythe", err)
	}
	var schedule []byte
	if sc.Schedule != nil {
		schedule, err = json.Marshal(sc.Schedule)
		if err != nil {
			return apperr.Wrap("store.UpsertScythe", err)
		}
	}

	if sc.ID == 0 {
		res, err := s.conn.Exec(
			`INSERT INTO scythes (name, job_data, schedule) VALUES (?, ?, ?)`,
			sc.Name, string(jobData), nullableString(schedule),
		)
		if err != nil {
			return apperr.Wrap("store.UpsertScythe", apperr.ErrStoreUnavailable)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return apperr.Wrap("store.UpsertScythe", err)
		}
		sc.ID = int(id)
		return nil
	}

	_, err = s.conn.Exec(
		`UPDATE scythes SET name = ?, job_data = ?, schedule = ? WHERE id = ?`,
		sc.Name, string(jobData), nullableString(schedule), sc.ID,
	)
	if err != nil {
		return apperr.Wrap("store.UpsertScythe", apperr.ErrStoreUnavailable)
	}
	return nil
}

func nullableString(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

// DeleteScythe removes a Scythe by id, reporting whether a row existed.
func (s *Store) DeleteScythe(id int) (bool, error) {
	res, err := s.conn.Exec(`DELETE FROM scythes WHERE id = ?`, id)
	if err != nil {
		return false, apperr.Wrap("store.DeleteScythe", apperr.ErrStoreUnavailable)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Wrap("store.DeleteScythe", err)
	}
	return n > 0, nil
}

// GetScythe fetches one Scythe by id.
func (s *Store) GetScythe(id int) (*model.Scythe, error) {
	row := s.conn.QueryRow(`SELECT id, name, job_data, schedule FROM scythes WHERE id = ?`, id)
	return scanScythe(row)
}

// ListScythes returns every saved Scythe.
func (s *Store) ListScythes() ([]model.Scythe, error) {
	rows, err := s.conn.Query(`SELECT id, name, job_data, schedule FROM scythes ORDER BY id ASC`)
	if err != nil {
		return nil, apperr.Wrap("store.ListScythes", err)
	}
	defer rows.Close()

	var out []model.Scythe
	for rows.Next() {
		sc, err := scanScytheRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sc)
	}
	return out, rows.Err()
}

func scanScythe(row *sql.Row) (*model.Scythe, error) {
	return scanScytheRow(row)
}

func scanScytheRow(row scannable) (*model.Scythe, error) {
	var sc model.Scythe
	var jobData string
	var schedule sql.NullString

	err := row.Scan(&sc.ID, &sc.Name, &jobData, &schedule)
	if err == sql.ErrNoRows {
		return nil, apperr.New("store.GetScythe", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Wrap("store.GetScythe", err)
	}

	if err := json.Unmarshal([]byte(jobData), &sc.JobData); err != nil {
		return nil, apperr.Wrap("store.GetScythe", err)
	}
	if schedule.Valid && schedule.String != "" {
		sc.Schedule = &model.ScytheSchedule{}
		if err := json.Unmarshal([]byte(schedule.String), sc.Schedule); err != nil {
			return nil, apperr.Wrap("store.GetScythe", err)
		}
	}
	return &sc, nil
}
