// Package store implements the local content-addressed package store: a
// root directory whose immediate children are package directories named
// "<name><hash>", each holding the installed tree plus an edp.info sidecar.
package store

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/edmhq/edm/identity"
)

// Dependency wraps a Properties value with an optional filesystem base
// path (set when the package is materialized locally) and the
// semicolon-joined list of discovered CMake config directories.
type Dependency struct {
	Properties identity.Properties
	BasePath   string
	ConfigDirs string
}

// Store is the local content-addressed package store rooted at Dir.
type Store struct {
	// Dir is the store root, "<base>/data" by default.
	Dir string

	mu   sync.RWMutex
	deps []Dependency
}

// New returns a Store rooted at dir. Call Load to populate it.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

// isCMakeConfigFile matches the files whose parent directories are
// recorded as CMake config directories
// ("*onfig.cmake", e.g. FooConfig.cmake or foo-config.cmake).
func isCMakeConfigFile(name string) bool {
	return strings.HasSuffix(name, "onfig.cmake")
}

// Load enumerates the children of Dir, parses each one's edp.info
// sidecar, and records its CMake config directories. Orphaned directories
// (no readable sidecar) are logged and skipped. Directories that hash to
// the same identity: the most recently modified one wins, the other is
// logged as a warning. Sidecar parsing fans out across a bounded errgroup
// since it is read-only and does not affect build-scheduling order; the
// resulting Dependency slice is sorted before being stored.
func (s *Store) Load(ctx context.Context) error {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.deps = nil
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("store: read %s: %w", s.Dir, err)
	}

	type loaded struct {
		dep   Dependency
		mtime int64
	}
	results := make([]*loaded, len(entries))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallelLoads())
	for i, entry := range entries {
		i, entry := i, entry
		if !entry.IsDir() {
			continue
		}
		eg.Go(func() error {
			select {
			case <-egCtx.Done():
				return egCtx.Err()
			default:
			}
			dir := filepath.Join(s.Dir, entry.Name())
			dep, err := loadPackageDir(dir)
			if err != nil {
				log.Printf("store: orphaned directory %s: %v", dir, err)
				return nil
			}
			info, err := entry.Info()
			var mtime int64
			if err == nil {
				mtime = info.ModTime().UnixNano()
			}
			results[i] = &loaded{dep: dep, mtime: mtime}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("store: load %s: %w", s.Dir, err)
	}

	byHash := make(map[string]*loaded)
	for _, r := range results {
		if r == nil {
			continue
		}
		hash := r.dep.Properties.Hash()
		if existing, ok := byHash[hash]; ok {
			log.Printf("store: hash collision on %s: keeping the newest of %s and %s",
				hash, existing.dep.BasePath, r.dep.BasePath)
			if r.mtime > existing.mtime {
				byHash[hash] = r
			}
			continue
		}
		byHash[hash] = r
	}

	deps := make([]identity.Properties, 0, len(byHash))
	depByProps := make(map[identity.Properties]Dependency, len(byHash))
	for _, r := range byHash {
		deps = append(deps, r.dep.Properties)
		depByProps[r.dep.Properties] = r.dep
	}
	identity.SortProperties(deps)

	sorted := make([]Dependency, 0, len(deps))
	for _, p := range deps {
		sorted = append(sorted, depByProps[p])
	}

	s.mu.Lock()
	s.deps = sorted
	s.mu.Unlock()
	return nil
}

func maxParallelLoads() int {
	// matches distri's use of errgroup for bounded I/O fan-out; a fixed
	// small bound avoids exhausting file descriptors on large stores.
	return 16
}

func loadPackageDir(dir string) (Dependency, error) {
	f, err := os.Open(filepath.Join(dir, "edp.info"))
	if err != nil {
		return Dependency{}, err
	}
	defer f.Close()
	props, err := identity.ParseSidecar(f)
	if err != nil {
		return Dependency{}, err
	}
	wantDirName := props.DirName()
	if got := filepath.Base(dir); got != wantDirName {
		return Dependency{}, fmt.Errorf("directory name %q does not match computed %q", got, wantDirName)
	}
	configDirs, err := findConfigDirs(dir)
	if err != nil {
		return Dependency{}, err
	}
	return Dependency{
		Properties: props,
		BasePath:   dir,
		ConfigDirs: strings.Join(configDirs, ";"),
	}, nil
}

func findConfigDirs(root string) ([]string, error) {
	seen := make(map[string]bool)
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isCMakeConfigFile(d.Name()) {
			parent := filepath.Dir(path)
			if !seen[parent] {
				seen[parent] = true
				dirs = append(dirs, parent)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(dirs)
	return dirs, nil
}

// Query returns every dependency whose Properties match q, sorted by the
// total order. The result is stable across calls given an unchanged
// store.
func (s *Store) Query(q identity.Properties) []Dependency {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Dependency
	for _, d := range s.deps {
		if identity.Match(q, d.Properties) {
			out = append(out, d)
		}
	}
	return out
}

// All returns every known dependency, sorted by the total order.
func (s *Store) All() []Dependency {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Dependency, len(s.deps))
	copy(out, s.deps)
	return out
}

// Insert imports the package tree at srcDir into the store. srcDir/edp.info
// must parse. The destination directory "<root>/<name><hash>" is replaced
// atomically: the new tree is staged in a sibling temp directory and
// renamed into place, so a concurrent reader never observes a
// half-written directory. Must be invoked under the data lock.
func (s *Store) Insert(ctx context.Context, srcDir string) (Dependency, error) {
	f, err := os.Open(filepath.Join(srcDir, "edp.info"))
	if err != nil {
		return Dependency{}, fmt.Errorf("store: insert: %w", err)
	}
	props, err := identity.ParseSidecar(f)
	f.Close()
	if err != nil {
		return Dependency{}, fmt.Errorf("store: insert: %w", err)
	}

	dst := filepath.Join(s.Dir, props.DirName())
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return Dependency{}, fmt.Errorf("store: insert: %w", err)
	}
	staging, err := os.MkdirTemp(s.Dir, ".insert-*")
	if err != nil {
		return Dependency{}, fmt.Errorf("store: insert: stage: %w", err)
	}
	stageDir := filepath.Join(staging, props.DirName())
	if err := copyTree(srcDir, stageDir); err != nil {
		os.RemoveAll(staging)
		return Dependency{}, fmt.Errorf("store: insert: copy: %w", err)
	}
	if err := os.RemoveAll(dst); err != nil {
		os.RemoveAll(staging)
		return Dependency{}, fmt.Errorf("store: insert: remove existing: %w", err)
	}
	if err := os.Rename(stageDir, dst); err != nil {
		os.RemoveAll(staging)
		return Dependency{}, fmt.Errorf("store: insert: rename into place: %w", err)
	}
	os.RemoveAll(staging)

	configDirs, err := findConfigDirs(dst)
	if err != nil {
		return Dependency{}, fmt.Errorf("store: insert: %w", err)
	}
	dep := Dependency{Properties: props, BasePath: dst, ConfigDirs: strings.Join(configDirs, ";")}

	s.mu.Lock()
	s.replaceLocked(dep)
	s.mu.Unlock()
	return dep, nil
}

func (s *Store) replaceLocked(dep Dependency) {
	hash := dep.Properties.Hash()
	for i, d := range s.deps {
		if d.Properties.Hash() == hash {
			s.deps[i] = dep
			return
		}
	}
	s.deps = append(s.deps, dep)
	sortDeps(s.deps)
}

func sortDeps(deps []Dependency) {
	sort.SliceStable(deps, func(i, j int) bool {
		return identity.Less(deps[i].Properties, deps[j].Properties)
	})
}

// Delete removes every directory matching q from disk and drops its
// record from memory.
func (s *Store) Delete(q identity.Properties) ([]identity.Properties, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []identity.Properties
	var kept []Dependency
	for _, d := range s.deps {
		if identity.Match(q, d.Properties) {
			if err := os.RemoveAll(d.BasePath); err != nil {
				return removed, fmt.Errorf("store: delete %s: %w", d.BasePath, err)
			}
			removed = append(removed, d.Properties)
			continue
		}
		kept = append(kept, d)
	}
	s.deps = kept
	return removed, nil
}
