// Package scythe implements CRUD over saved job templates (Scythes),
// gated behind the Store and wired to the Scheduler so every change takes
// effect immediately.
package scythe

import (
	apperr "reaper/internal/errors"
	"reaper/internal/model"
	"reaper/internal/state"
	"reaper/internal/store"
)

// Reloader is satisfied by *scheduler.Scheduler. Declared here instead of
// imported to avoid a scheduler<->scythe import cycle.
type Reloader interface {
	Reload()
}

// Manager owns Scythe CRUD against the Store and keeps the Scheduler in sync.
type Manager struct {
	store     *store.Store
	state     *state.Manager
	scheduler Reloader
}

// New constructs a Manager. scheduler may be nil in tests that don't care
// about reload side effects.
func New(st *store.Store, sm *state.Manager, scheduler Reloader) *Manager {
	return &Manager{store: st, state: sm, scheduler: scheduler}
}

// List returns every saved Scythe.
func (m *Manager) List() ([]model.Scythe, error) {
	return m.store.ListScythes()
}

// Get fetches one Scythe by id.
func (m *Manager) Get(id int) (*model.Scythe, error) {
	return m.store.GetScythe(id)
}

// Add validates and inserts a new Scythe, enforcing the
// at-most-one-Scythe-per-URL invariant before persisting.
func (m *Manager) Add(sc model.Scythe) (model.Scythe, error) {
	sc.ID = 0
	if err := sc.Validate(); err != nil {
		return model.Scythe{}, err
	}
	if err := m.checkDuplicateURL(sc); err != nil {
		return model.Scythe{}, err
	}
	if err := m.store.UpsertScythe(&sc); err != nil {
		return model.Scythe{}, err
	}
	m.afterChange()
	return sc, nil
}

// Update validates and replaces an existing Scythe.
func (m *Manager) Update(sc model.Scythe) (model.Scythe, error) {
	if sc.ID == 0 {
		return model.Scythe{}, apperr.NewWithMessage("scythe.Update", apperr.ErrValidation, "id is required")
	}
	if err := sc.Validate(); err != nil {
		return model.Scythe{}, err
	}
	if err := m.checkDuplicateURL(sc); err != nil {
		return model.Scythe{}, err
	}
	if err := m.store.UpsertScythe(&sc); err != nil {
		return model.Scythe{}, err
	}
	m.afterChange()
	return sc, nil
}

// Delete removes a Scythe by id.
func (m *Manager) Delete(id int) error {
	existed, err := m.store.DeleteScythe(id)
	if err != nil {
		return err
	}
	if !existed {
		return apperr.New("scythe.Delete", apperr.ErrNotFound)
	}
	m.afterChange()
	return nil
}

func (m *Manager) afterChange() {
	m.state.BumpScytheVersion()
	if m.scheduler != nil {
		m.scheduler.Reload()
	}
}

func (m *Manager) checkDuplicateURL(sc model.Scythe) error {
	existing, err := m.store.ListScythes()
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID == sc.ID {
			continue
		}
		if other.JobData.URL == sc.JobData.URL {
			return apperr.NewWithMessage("scythe.checkDuplicateURL", apperr.ErrValidation, "a Scythe for this URL already exists")
		}
	}
	return nil
}
