// Package manager is a thin façade over the Local Store and the
// configured Remotes, exposing the combined query/pull/push surface
// `pack`/`get` need without exposing System's config-mutation internals.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/edmhq/edm/identity"
	"github.com/edmhq/edm/internal/store"
	"github.com/edmhq/edm/internal/system"
)

// Manager wraps a System for the read/pull/push operations the CLI
// needs.
type Manager struct {
	Sys *system.System
}

func New(sys *system.System) *Manager { return &Manager{Sys: sys} }

// List returns every local match for q, plus the matches on the named
// remote when remoteName is non-empty.
func (m *Manager) List(ctx context.Context, q identity.Properties, remoteName string) (local []store.Dependency, remote []identity.Properties, err error) {
	local = m.Sys.Store.Query(q)
	if remoteName == "" {
		return local, nil, nil
	}
	backend, ok := m.Sys.Remote(remoteName)
	if !ok {
		return local, nil, fmt.Errorf("manager: unknown remote %q", remoteName)
	}
	if err := connect(ctx, backend); err != nil {
		return local, nil, err
	}
	return local, backend.Query(q), nil
}

// Get resolves q against the Local Store first; on a miss it falls
// through every configured remote in order (default first), pulling the
// first match into the store. This is the supplemented "multiple
// simultaneous remotes queried transparently by get" scenario: the
// original's get.py falls back through every configured remote, not just
// the default, when the default misses.
func (m *Manager) Get(ctx context.Context, q identity.Properties) (store.Dependency, error) {
	if local := m.Sys.Store.Query(q); len(local) > 0 {
		return local[len(local)-1], nil
	}

	def := m.Sys.Default()
	candidates := make([]system.Backend, 0, len(m.Sys.Remotes()))
	if def != nil {
		candidates = append(candidates, def)
	}
	for _, b := range m.Sys.Remotes() {
		if b != def {
			candidates = append(candidates, b)
		}
	}
	if len(candidates) == 0 {
		return store.Dependency{}, fmt.Errorf("manager: get %s: no remotes configured", identity.Format(q))
	}

	for _, backend := range candidates {
		if err := backend.Connect(ctx); err != nil || !backend.Valid() {
			continue
		}
		matches := backend.Query(q)
		if len(matches) == 0 {
			continue
		}
		best := matches[len(matches)-1]

		tmp, err := m.Sys.NewTempDir("pull")
		if err != nil {
			return store.Dependency{}, err
		}
		archivePath, err := backend.Pull(ctx, best, tmp)
		if err != nil {
			continue
		}
		extractDir, err := store.Extract(archivePath, tmp)
		if err != nil {
			return store.Dependency{}, fmt.Errorf("manager: get %s: %w", identity.Format(q), err)
		}
		return m.Sys.ImportFolder(ctx, extractDir)
	}
	return store.Dependency{}, fmt.Errorf("manager: get %s: no remote has a match", identity.Format(q))
}

// Push packs dep from the local store and uploads it to the named remote
// (or the default remote when name is empty). The remote's deplist is
// synchronized before the push so the force-check and the subsequent
// deplist merge in Remote.Push see every package already listed there,
// not just whatever this process happened to push itself.
func (m *Manager) Push(ctx context.Context, name string, dep store.Dependency, force bool) error {
	backend, err := m.resolve(name)
	if err != nil {
		return err
	}
	if err := connect(ctx, backend); err != nil {
		return err
	}
	archivePath, err := store.Pack(dep, m.Sys.TempPath)
	if err != nil {
		return fmt.Errorf("manager: push %s: %w", identity.Format(dep.Properties), err)
	}
	return backend.Push(ctx, dep.Properties, archivePath, force)
}

// Pull downloads the archive for dep from the named remote (or the
// default remote when name is empty) and imports it into the local
// store.
func (m *Manager) Pull(ctx context.Context, name string, dep identity.Properties) (store.Dependency, error) {
	backend, err := m.resolve(name)
	if err != nil {
		return store.Dependency{}, err
	}
	if err := connect(ctx, backend); err != nil {
		return store.Dependency{}, err
	}
	tmp, err := m.Sys.NewTempDir("pull")
	if err != nil {
		return store.Dependency{}, err
	}
	archivePath, err := backend.Pull(ctx, dep, tmp)
	if err != nil {
		return store.Dependency{}, err
	}
	extractDir, err := store.Extract(archivePath, tmp)
	if err != nil {
		return store.Dependency{}, fmt.Errorf("manager: pull %s: %w", identity.Format(dep), err)
	}
	return m.Sys.ImportFolder(ctx, extractDir)
}

func (m *Manager) resolve(name string) (system.Backend, error) {
	if name == "" {
		if def := m.Sys.Default(); def != nil {
			return def, nil
		}
		return nil, fmt.Errorf("manager: no default remote configured")
	}
	backend, ok := m.Sys.Remote(name)
	if !ok {
		return nil, fmt.Errorf("manager: unknown remote %q", name)
	}
	return backend, nil
}

// connect establishes the session and primes the backend's deplist cache,
// the precondition every Query/Push/Pull in this package relies on.
func connect(ctx context.Context, backend system.Backend) error {
	if err := backend.Connect(ctx); err != nil {
		return fmt.Errorf("manager: %w", err)
	}
	if !backend.Valid() {
		return fmt.Errorf("manager: remote is not valid after connect")
	}
	return nil
}

// Prune removes local packages older than olderThan — the supplemented
// "pack clean" scenario.
func (m *Manager) Prune(olderThan time.Duration) ([]identity.Properties, error) {
	return m.Sys.Store.Prune(olderThan)
}
