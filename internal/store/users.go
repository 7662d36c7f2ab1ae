package store

import (
	"database/sql"
	"encoding/json"

	apperr "reaper/internal/errors"
	"reaper/internal/model"
)

// GetUser fetches one user by username.
func (s *Store) GetUser(username string) (*model.User, error) {
	row := s.conn.QueryRow(`SELECT username, password_hash, permissions FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// ListUsers returns every user row.
func (s *Store) ListUsers() ([]model.User, error) {
	rows, err := s.conn.Query(`SELECT username, password_hash, permissions FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, apperr.Wrap("store.ListUsers", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// AddUser inserts a new user row.
func (s *Store) AddUser(u *model.User) error {
	perms, err := json.Marshal(u.Permissions)
	if err != nil {
		return apperr.Wrap("store.AddUser", err)
	}
	_, err = s.conn.Exec(
		`INSERT INTO users (username, password_hash, permissions) VALUES (?, ?, ?)`,
		u.Username, nullableString([]byte(u.PasswordHash)), string(perms),
	)
	if err != nil {
		return apperr.Wrap("store.AddUser", apperr.ErrStoreUnavailable)
	}
	return nil
}

// UpdateUser replaces an existing user row.
func (s *Store) UpdateUser(u *model.User) error {
	perms, err := json.Marshal(u.Permissions)
	if err != nil {
		return apperr.Wrap("store.UpdateUser", err)
	}
	_, err = s.conn.Exec(
		`UPDATE users SET password_hash = ?, permissions = ? WHERE username = ?`,
		nullableString([]byte(u.PasswordHash)), string(perms), u.Username,
	)
	if err != nil {
		return apperr.Wrap("store.UpdateUser", apperr.ErrStoreUnavailable)
	}
	return nil
}

// DeleteUser removes a user by username. The admin account is protected by
// UserManager, not here; the Store deletes whatever it is asked to.
func (s *Store) DeleteUser(username string) error {
	if _, err := s.conn.Exec(`DELETE FROM users WHERE username = ?`, username); err != nil {
		return apperr.Wrap("store.DeleteUser", apperr.ErrStoreUnavailable)
	}
	return nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	return scanUserRow(row)
}

func scanUserRow(row scannable) (*model.User, error) {
	var u model.User
	var passwordHash sql.NullString
	var permissions string

	err := row.Scan(&u.Username, &passwordHash, &permissions)
	if err == sql.ErrNoRows {
		return nil, apperr.New("store.GetUser", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, apperr.Wrap("store.GetUser", err)
	}

	u.PasswordHash = passwordHash.String
	if permissions != "" {
		if err := json.Unmarshal([]byte(permissions), &u.Permissions); err != nil {
			return nil, apperr.Wrap("store.GetUser", err)
		}
	}
	return &u, nil
}
