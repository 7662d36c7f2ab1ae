// Package user implements account CRUD, with the admin account protected
// from deletion.
package user

import (
	apperr "reaper/internal/errors"
	"reaper/internal/model"
	"reaper/internal/store"
)

// AdminUsername is the one account UserManager refuses to delete.
const AdminUsername = "admin"

// Manager owns account CRUD against the Store.
type Manager struct {
	store *store.Store
}

// New constructs a Manager.
func New(st *store.Store) *Manager {
	return &Manager{store: st}
}

// Get fetches one user by username.
func (m *Manager) Get(username string) (*model.User, error) {
	return m.store.GetUser(username)
}

// List returns every user.
func (m *Manager) List() ([]model.User, error) {
	return m.store.ListUsers()
}

// Add creates a new user, hashing plaintext into PasswordHash if given.
func (m *Manager) Add(u model.User, plaintext string) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if plaintext != "" {
		if err := u.SetPassword(plaintext); err != nil {
			return err
		}
	}
	return m.store.AddUser(&u)
}

// Update replaces an existing user's permissions and, if plaintext is
// non-empty, rotates the password.
func (m *Manager) Update(u model.User, plaintext string) error {
	if err := u.Validate(); err != nil {
		return err
	}
	if plaintext != "" {
		if err := u.SetPassword(plaintext); err != nil {
			return err
		}
	} else {
		existing, err := m.store.GetUser(u.Username)
		if err != nil {
			return err
		}
		u.PasswordHash = existing.PasswordHash
	}
	return m.store.UpdateUser(&u)
}

// Delete removes a user by username. The admin account cannot be deleted.
func (m *Manager) Delete(username string) error {
	if username == AdminUsername {
		return apperr.NewWithMessage("user.Delete", apperr.ErrValidation, "the admin account cannot be deleted")
	}
	return m.store.DeleteUser(username)
}
