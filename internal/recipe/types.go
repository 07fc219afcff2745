// Package recipe implements the declarative Recipe model (component H):
// a TOML document describing how to fetch, configure, build and install
// one native dependency, plus the Settings Builder fills in at build
// time.
package recipe

import (
	"time"

	"github.com/edmhq/edm/identity"
)

// Dependency is a property subset a Recipe declares against the Local
// Store — a partial identity. Builder fills in a missing os/arch from the
// recipe's own resolved Settings before it is queried; an unset
// compiler, glibc or kind stays a wildcard.
type Dependency struct {
	Name     string `toml:"name"`
	Version  string `toml:"version"`
	Kind     string `toml:"kind,omitempty"`
	OS       string `toml:"os,omitempty"`
	Arch     string `toml:"arch,omitempty"`
	Compiler string `toml:"compiler,omitempty"`
	Glibc    string `toml:"glibc,omitempty"`
}

// Hook is one named hook: an ordered list of command lines in Run. Builder
// splits each line on whitespace and runs it directly, not through a
// shell. A Recipe with no hook of a given name gets the no-op default —
// its step list is simply empty.
type Hook struct {
	Name string   `toml:"name,omitempty"`
	Run  []string `toml:"run,omitempty"`
}

// Settings are resolved by Builder (step 1 of the per-recipe pipeline,
// "Resolve settings") and used for the package identity, dependency
// resolution and the configure flags; they are not passed to hook steps.
// They are not read from the recipe file; Define populates them.
type Settings struct {
	OS          identity.OS
	Arch        identity.Arch
	Compiler    identity.Compiler
	Glibc       string
	InstallPath string
	BuildDate   time.Time
}

// Recipe is the declarative object read from a single "*.edm.toml" file.
type Recipe struct {
	Name           string            `toml:"name"`
	Version        string            `toml:"version"`
	OS             []string          `toml:"os,omitempty"`
	Arch           []string          `toml:"arch,omitempty"`
	SourceDir      string            `toml:"source_dir"`
	Kind           string            `toml:"kind"`
	CacheVariables map[string]string `toml:"cache_variables,omitempty"`
	Config         []string          `toml:"config,omitempty"`
	Dependencies   []Dependency      `toml:"dependencies,omitempty"`

	Source    *Hook `toml:"source,omitempty"`
	Configure *Hook `toml:"configure,omitempty"`
	Install   *Hook `toml:"install,omitempty"`
	Clean     *Hook `toml:"clean,omitempty"`

	// Path is the recipe file's own location, set by the loader — not
	// part of the TOML document.
	Path string `toml:"-"`

	// Settings is filled in by Builder, through Define, before any hook runs.
	Settings Settings `toml:"-"`
}

// Kind constants, matching identity.Kind's vocabulary.
const (
	KindShared = "shared"
	KindStatic = "static"
	KindHeader = "header"
)

// DefaultConfig is used when a recipe omits "config" entirely.
var DefaultConfig = []string{"Debug", "Release"}

// Configurations returns r.Config, or DefaultConfig if the recipe didn't
// specify one.
func (r *Recipe) Configurations() []string {
	if len(r.Config) == 0 {
		return DefaultConfig
	}
	return r.Config
}

// Define fills in Settings — called once by Builder per recipe, before
// any hook or dependency resolution happens.
func (r *Recipe) Define(s Settings) {
	r.Settings = s
}

// hookSteps returns h.Run, or nil for an unset hook — the no-op default.
func hookSteps(h *Hook) []string {
	if h == nil {
		return nil
	}
	return h.Run
}

// SourceSteps, ConfigureSteps, InstallSteps and CleanSteps expose each
// hook's step list with the no-op default already applied, so Builder
// never has to nil-check.
func (r *Recipe) SourceSteps() []string    { return hookSteps(r.Source) }
func (r *Recipe) ConfigureSteps() []string { return hookSteps(r.Configure) }
func (r *Recipe) InstallSteps() []string   { return hookSteps(r.Install) }
func (r *Recipe) CleanSteps() []string     { return hookSteps(r.Clean) }
