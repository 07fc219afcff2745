// Package system implements the System component (G): JSON configuration
// at <base>/config.ini, remote registry construction, toolsets, and the
// mutating operations (add/del remote, add/del toolset, import_folder,
// clear_tmp) that take the config or data lock before touching disk.
package system

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/renameio"

	"github.com/edmhq/edm/identity"
	"github.com/edmhq/edm/internal/lock"
	"github.com/edmhq/edm/internal/remote"
	"github.com/edmhq/edm/internal/remote/folderremote"
	"github.com/edmhq/edm/internal/remote/ftpremote"
	"github.com/edmhq/edm/internal/remote/httpremote"
	"github.com/edmhq/edm/internal/store"
)

// configPollInterval and configTimeout implement the config-lock
// contention behavior: poll every 0.5s, abort after 5s — much tighter
// than the data lock's defaults.
const (
	configPollInterval = 500 * time.Millisecond
	configTimeout      = 5 * time.Second
)

// Backend is the operation set every constructed remote satisfies,
// regardless of kind — the HTTP, FTP and Folder backends all expose the
// same shape (remote.Remote wraps FTP/Folder; httpremote.Client
// implements it directly for HTTP).
type Backend interface {
	Connect(ctx context.Context) error
	Valid() bool
	Query(q identity.Properties) []identity.Properties
	Pull(ctx context.Context, dep identity.Properties, dest string) (string, error)
	Push(ctx context.Context, dep identity.Properties, file string, force bool) error
	PullDeplist(ctx context.Context) error
	PushDeplist(ctx context.Context) error
}

// RemoteConfig is one entry under the config's "remotes" key.
type RemoteConfig struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Address  string `json:"address"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Default  bool   `json:"default,omitempty"`
}

// Toolset is a named compiler plus target-platform tuple. Builder takes
// only OS and Arch from the default, non-auto-filled toolset;
// CompilerPath and Glibc are stored and listed but not used by Builder.
type Toolset struct {
	Name         string `json:"name"`
	CompilerPath string `json:"compiler_path"`
	OS           string `json:"os,omitempty"`
	Arch         string `json:"arch,omitempty"`
	Glibc        string `json:"glibc,omitempty"`
	Default      bool   `json:"default,omitempty"`
	Autofill     bool   `json:"autofill,omitempty"`
}

// toolsetJSON mirrors Toolset's field order for MarshalJSON without
// recursing back into it.
type toolsetJSON struct {
	Name         string `json:"name"`
	CompilerPath string `json:"compiler_path"`
	OS           string `json:"os,omitempty"`
	Arch         string `json:"arch,omitempty"`
	Glibc        string `json:"glibc,omitempty"`
	Default      bool   `json:"default,omitempty"`
	Autofill     bool   `json:"autofill,omitempty"`
}

// MarshalJSON omits OS/Arch/Glibc for an auto-filled toolset: those were
// never user-supplied, so re-probing the host on the next load is more
// correct than persisting a stale snapshot, matching the original's
// to_dict, which drops the same fields when autofill is set.
func (t Toolset) MarshalJSON() ([]byte, error) {
	out := toolsetJSON{
		Name:         t.Name,
		CompilerPath: t.CompilerPath,
		OS:           t.OS,
		Arch:         t.Arch,
		Glibc:        t.Glibc,
		Default:      t.Default,
		Autofill:     t.Autofill,
	}
	if t.Autofill {
		out.OS = ""
		out.Arch = ""
		out.Glibc = ""
	}
	return json.Marshal(out)
}

// configDoc is the on-disk JSON shape of config.ini.
type configDoc struct {
	Remotes  []RemoteConfig `json:"remotes"`
	Toolsets []Toolset      `json:"toolsets"`
	BasePath string         `json:"base_path,omitempty"`
	DataPath string         `json:"data_path,omitempty"`
	TempPath string         `json:"temp_path,omitempty"`
}

// System owns the configuration, the constructed remotes, the toolset
// registry, and the Local Store rooted at <base>/data.
type System struct {
	BasePath, DataPath, TempPath string
	ConfigPath                  string

	configLock *lock.Lock
	dataLock   *lock.Lock

	mu       sync.RWMutex
	remotes  map[string]Backend
	entries  map[string]RemoteConfig
	order    []string
	def      string
	toolsets []Toolset

	Store *store.Store
}

func defaultBase() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("system: %w", err)
	}
	return filepath.Join(home, ".edm"), nil
}

// Open reads (or initializes) the System rooted at base. An empty base
// resolves to the user's home directory plus "/.edm".
func Open(ctx context.Context, base string) (*System, error) {
	if base == "" {
		var err error
		base, err = defaultBase()
		if err != nil {
			return nil, err
		}
	}
	s := &System{
		BasePath:   base,
		ConfigPath: filepath.Join(base, "config.ini"),
		remotes:    make(map[string]Backend),
		entries:    make(map[string]RemoteConfig),
	}
	s.configLock = &lock.Lock{
		Path:         s.ConfigPath + ".lock",
		Timeout:      configTimeout,
		Deadlock:     configTimeout,
		PollInterval: configPollInterval,
	}

	if err := os.MkdirAll(base, 0755); err != nil {
		return nil, fmt.Errorf("system: %w", err)
	}

	var doc configDoc
	if err := lock.WithLock(ctx, s.configLock, func() error {
		var err error
		doc, err = readConfig(s.ConfigPath)
		return err
	}); err != nil {
		return nil, err
	}

	s.DataPath = doc.DataPath
	if s.DataPath == "" {
		s.DataPath = filepath.Join(base, "data")
	}
	s.TempPath = doc.TempPath
	if s.TempPath == "" {
		s.TempPath = filepath.Join(base, "tmp")
	}
	s.dataLock = lock.New(filepath.Join(s.DataPath, "data.lock"))

	if err := os.MkdirAll(s.DataPath, 0755); err != nil {
		return nil, fmt.Errorf("system: %w", err)
	}
	if err := os.MkdirAll(s.TempPath, 0755); err != nil {
		return nil, fmt.Errorf("system: %w", err)
	}

	s.Store = store.New(s.DataPath)
	if err := s.Store.Load(ctx); err != nil {
		return nil, fmt.Errorf("system: loading store: %w", err)
	}

	s.toolsets = doc.Toolsets
	for i := range s.toolsets {
		if s.toolsets[i].Autofill {
			s.toolsets[i].OS = string(ProbeHostOS())
			s.toolsets[i].Arch = string(ProbeHostArch())
		}
	}
	s.buildRemotes(doc.Remotes)

	if err := lock.WithLock(ctx, s.configLock, func() error {
		return writeConfig(s.ConfigPath, s.snapshot())
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func readConfig(path string) (configDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return configDoc{}, nil
		}
		return configDoc{}, fmt.Errorf("system: reading config: %w", err)
	}
	var doc configDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return configDoc{}, fmt.Errorf("system: parsing config: %w", err)
	}
	return doc, nil
}

// writeConfig replaces config.ini atomically via a temp-file-then-rename,
// so a crash or concurrent reader never observes a half-written config.
func writeConfig(path string, doc configDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("system: encoding config: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("system: writing config: %w", err)
	}
	return nil
}

// buildRemotes instantiates a Backend per entry whose kind is
// recognized; unknown kinds are skipped with a warning. The first entry
// flagged default becomes the default remote, ties broken by iteration
// order.
func (s *System) buildRemotes(entries []RemoteConfig) {
	for _, e := range entries {
		backend, err := newBackend(e)
		if err != nil {
			log.Printf("system: remote %q: skipping unknown kind %q: %v", e.Name, e.Kind, err)
			continue
		}
		s.remotes[e.Name] = backend
		s.entries[e.Name] = e
		s.order = append(s.order, e.Name)
		if e.Default && s.def == "" {
			s.def = e.Name
		}
	}
}

func newBackend(e RemoteConfig) (Backend, error) {
	switch e.Kind {
	case "srv":
		return &httpremote.Client{BaseURL: "http://" + e.Address, Username: e.Username, Password: e.Password}, nil
	case "srvs":
		return &httpremote.Client{BaseURL: "https://" + e.Address, Username: e.Username, Password: e.Password}, nil
	case "ftp":
		return remote.New(e.Name, &ftpremote.Transport{Addr: e.Address}), nil
	case "folder":
		return remote.New(e.Name, &folderremote.Transport{Dir: e.Address}), nil
	default:
		return nil, fmt.Errorf("unknown remote kind %q", e.Kind)
	}
}

// snapshot renders the in-memory state back into a configDoc, in a form
// stable enough to be a faithful "write config back to disk" step.
func (s *System) snapshot() configDoc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := configDoc{
		Toolsets: s.toolsets,
		BasePath: s.BasePath,
		DataPath: s.DataPath,
		TempPath: s.TempPath,
	}
	for _, name := range s.order {
		// The constructed Backend doesn't round-trip kind/address/creds;
		// callers that add remotes keep the RemoteConfig in entries below.
		if rc, ok := s.entries[name]; ok {
			doc.Remotes = append(doc.Remotes, rc)
		}
	}
	return doc
}

// Remotes returns the constructed backends in config order.
func (s *System) Remotes() []Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Backend, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.remotes[name])
	}
	return out
}

// Default returns the default remote, or nil if none is configured.
func (s *System) Default() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.def == "" {
		return nil
	}
	return s.remotes[s.def]
}

// DefaultName returns the name of the default remote, or "" if none is
// configured.
func (s *System) DefaultName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.def
}

// Remote returns the named backend, or false if no such remote is
// configured.
func (s *System) Remote(name string) (Backend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.remotes[name]
	return b, ok
}

// RemoteConfigs returns the configured remotes' persisted entries, in
// config order, for display purposes (e.g. `edm remote list`).
func (s *System) RemoteConfigs() []RemoteConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RemoteConfig, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name])
	}
	return out
}

// Toolsets returns the configured toolsets.
func (s *System) Toolsets() []Toolset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Toolset(nil), s.toolsets...)
}
