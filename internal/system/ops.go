package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/edmhq/edm/identity"
	"github.com/edmhq/edm/internal/lock"
	"github.com/edmhq/edm/internal/store"
)

// mutateConfig takes the config lock, runs fn against the in-memory
// state, then writes the config back to disk — the shared shape of every
// mutating operation in §4.G.
func (s *System) mutateConfig(ctx context.Context, fn func()) error {
	return lock.WithLock(ctx, s.configLock, func() error {
		s.mu.Lock()
		fn()
		s.mu.Unlock()
		return writeConfig(s.ConfigPath, s.snapshot())
	})
}

// AddRemote constructs and registers a new remote, persisting it to
// config.ini under the config lock.
func (s *System) AddRemote(ctx context.Context, e RemoteConfig) error {
	backend, err := newBackend(e)
	if err != nil {
		return fmt.Errorf("system: add remote %q: %w", e.Name, err)
	}
	return s.mutateConfig(ctx, func() {
		if e.Default {
			for name := range s.entries {
				if name != e.Name {
					entry := s.entries[name]
					entry.Default = false
					s.entries[name] = entry
				}
			}
			s.def = e.Name
		}
		if _, exists := s.entries[e.Name]; !exists {
			s.order = append(s.order, e.Name)
		}
		s.entries[e.Name] = e
		s.remotes[e.Name] = backend
	})
}

// DelRemote removes a remote by name.
func (s *System) DelRemote(ctx context.Context, name string) error {
	return s.mutateConfig(ctx, func() {
		delete(s.entries, name)
		delete(s.remotes, name)
		for i, n := range s.order {
			if n == name {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
		if s.def == name {
			s.def = ""
		}
	})
}

// AddToolset registers a toolset. When os/arch are both empty, it is
// auto-filled from the host probe and marked Autofill.
func (s *System) AddToolset(ctx context.Context, t Toolset) error {
	if t.OS == "" && t.Arch == "" {
		t.OS = string(ProbeHostOS())
		t.Arch = string(ProbeHostArch())
		t.Autofill = true
	}
	return s.mutateConfig(ctx, func() {
		if t.Default {
			for i := range s.toolsets {
				s.toolsets[i].Default = false
			}
		}
		s.toolsets = append(s.toolsets, t)
	})
}

// DelToolset removes the toolset with the given name.
func (s *System) DelToolset(ctx context.Context, name string) error {
	return s.mutateConfig(ctx, func() {
		out := s.toolsets[:0]
		for _, t := range s.toolsets {
			if t.Name != name {
				out = append(out, t)
			}
		}
		s.toolsets = out
	})
}

// ProbeHostOS and ProbeHostArch read the host's OS/architecture off the
// Go runtime — used for toolset autofill (here) and Builder's settings
// resolution (internal/builder), which falls back to the same probe.
func ProbeHostOS() identity.OS {
	switch runtime.GOOS {
	case "windows":
		return identity.Windows
	case "darwin":
		return identity.MacOS
	default:
		return identity.Linux
	}
}

func ProbeHostArch() identity.Arch {
	switch runtime.GOARCH {
	case "arm64":
		return identity.Aarch64
	case "386":
		return identity.X86
	case "arm":
		return identity.Armv7
	default:
		return identity.X86_64
	}
}

// ImportFolder parses src's edp.info, computes the destination
// directory, removes any existing directory with the same identity,
// copies the new tree in, clears temp, and reloads the local database —
// all under the data lock.
func (s *System) ImportFolder(ctx context.Context, src string) (store.Dependency, error) {
	var dep store.Dependency
	err := lock.WithLock(ctx, s.dataLock, func() error {
		var err error
		dep, err = s.Store.Insert(ctx, src)
		if err != nil {
			return err
		}
		if err := s.clearTempLocked(); err != nil {
			return err
		}
		return s.Store.Load(ctx)
	})
	return dep, err
}

// ClearTmp empties the temp directory.
func (s *System) ClearTmp(ctx context.Context) error {
	return lock.WithLock(ctx, s.dataLock, s.clearTempLocked)
}

func (s *System) clearTempLocked() error {
	entries, err := os.ReadDir(s.TempPath)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(s.TempPath, 0755)
		}
		return fmt.Errorf("system: clear temp: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.TempPath, e.Name())); err != nil {
			return fmt.Errorf("system: clear temp: %w", err)
		}
	}
	return nil
}

// NewTempDir creates a fresh scratch directory under TempPath for a
// single build.
func (s *System) NewTempDir(prefix string) (string, error) {
	return os.MkdirTemp(s.TempPath, prefix+"-*")
}
