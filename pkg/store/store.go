// Package store persists form configurations.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-clinicform/pkg/model"
)

var (
	ErrNotFound  = errors.New("store: form not found")
	ErrMissingID = errors.New("store: form has no id")
)

// FormStore reads and writes serialised forms. List returns the forms of one
// clinic ordered by id; the empty clinic id lists unscoped forms.
type FormStore interface {
	Get(ctx context.Context, id string) (model.FormModel, error)
	Save(ctx context.Context, form model.FormModel) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, clinicID string) ([]model.FormModel, error)
}

// MemoryStore keeps forms in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	forms map[string]model.FormModel
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{forms: make(map[string]model.FormModel)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (model.FormModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	form, ok := m.forms[id]
	if !ok {
		return model.FormModel{}, ErrNotFound
	}
	return form.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, form model.FormModel) error {
	if strings.TrimSpace(form.ID) == "" {
		return ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forms[form.ID] = form.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.forms[id]; !ok {
		return ErrNotFound
	}
	delete(m.forms, id)
	return nil
}

func (m *MemoryStore) List(_ context.Context, clinicID string) ([]model.FormModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.FormModel, 0)
	for _, form := range m.forms {
		if form.ClinicID == clinicID {
			out = append(out, form.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

func sortByID(forms []model.FormModel) {
	sort.Slice(forms, func(i, j int) bool { return forms[i].ID < forms[j].ID })
}
