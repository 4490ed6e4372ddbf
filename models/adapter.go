package models

import (
	"fmt"
	"slices"
	"sync"
)

// SessionLoader opens a backend from a model file
type SessionLoader func(path string) (Backend, error)

// AdapterMismatchError reports that the active adapters differ from the requested one
type AdapterMismatchError struct {
	Expected string
	Active   []string
}

func (e *AdapterMismatchError) Error() string {
	return fmt.Sprintf("incorrect adapters loaded: want [%s], active %v", e.Expected, e.Active)
}

// AdapterHost is a backend whose weights can be specialised by named adapters
type AdapterHost interface {
	Backend
	LoadAdapter(name, path string) error
	SetAdapter(name string) error
	ActiveAdapters() []string
}

// VerifyAdapter fails unless expected is the one and only active adapter
func VerifyAdapter(host AdapterHost, expected string) error {
	active := host.ActiveAdapters()
	if len(active) != 1 || active[0] != expected {
		return &AdapterMismatchError{Expected: expected, Active: active}
	}
	return nil
}

// AdapterModel is a base model plus swappable adapters.
// Each adapter is an exported graph of the base weights with the adapter applied;
// Run dispatches to the active adapter, or to the base model when none is active.
// The base graph is opened on first use only.
type AdapterModel struct {
	basePath string
	base     Backend
	loader   SessionLoader
	adapters map[string]Backend
	active   string
	mu       sync.Mutex
}

// NewAdapterModel returns a host for the base model at basePath
func NewAdapterModel(basePath string, loader SessionLoader) *AdapterModel {
	return &AdapterModel{
		basePath: basePath,
		loader:   loader,
		adapters: make(map[string]Backend),
	}
}

// LoadAdapter loads an adapter under name.
// The first adapter loaded becomes active; later ones need SetAdapter.
func (m *AdapterModel) LoadAdapter(name, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.adapters[name]; exists {
		return fmt.Errorf("adapter %q already loaded", name)
	}
	backend, err := m.loader(path)
	if err != nil {
		return fmt.Errorf("failed to load adapter %q from %s: %w", name, path, err)
	}
	m.adapters[name] = backend
	if m.active == "" {
		m.active = name
	}
	return nil
}

// SetAdapter activates a loaded adapter
func (m *AdapterModel) SetAdapter(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.adapters[name]; !exists {
		return fmt.Errorf("adapter %q is not loaded", name)
	}
	m.active = name
	return nil
}

// ActiveAdapters returns the names of the active adapters
func (m *AdapterModel) ActiveAdapters() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == "" {
		return nil
	}
	return []string{m.active}
}

// Adapters returns the loaded adapter names, sorted
func (m *AdapterModel) Adapters() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.adapters))
	for name := range m.adapters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run executes the active adapter graph
func (m *AdapterModel) Run(inputs map[string]Tensor) (map[string]Tensor, error) {
	m.mu.Lock()
	var backend Backend
	if m.active != "" {
		backend = m.adapters[m.active]
	} else {
		if m.base == nil {
			base, err := m.loader(m.basePath)
			if err != nil {
				m.mu.Unlock()
				return nil, fmt.Errorf("failed to load base model: %w", err)
			}
			m.base = base
		}
		backend = m.base
	}
	m.mu.Unlock()

	return backend.Run(inputs)
}

// Close releases the base model and every adapter
func (m *AdapterModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, backend := range m.adapters {
		if err := backend.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close adapter %q: %w", name, err)
		}
	}
	m.adapters = map[string]Backend{}
	m.active = ""
	if m.base != nil {
		if err := m.base.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.base = nil
	}
	return firstErr
}
