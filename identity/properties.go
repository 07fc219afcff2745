// Package identity implements the package identity tuple, its total
// order, its query/match semantics, its textual forms, and its hash.
package identity

import (
	"strings"
	"time"
)

// OS identifies an operating system.
type OS string

const (
	Linux   OS = "linux"
	Windows OS = "windows"
	MacOS   OS = "macos"
	AnyOS   OS = "any"
)

// Arch identifies a CPU architecture.
type Arch string

const (
	X86_64  Arch = "x86_64"
	Aarch64 Arch = "aarch64"
	X86     Arch = "x86"
	Arm64   Arch = "arm64"
	Armv7   Arch = "armv7"
	AnyArch Arch = "any"
)

// Kind identifies the linkage kind of a package.
type Kind string

const (
	Shared Kind = "shared"
	Static Kind = "static"
	Header Kind = "header"
	AnyKind Kind = "any"
)

// Compiler identifies the toolchain/ABI family a package was built with.
type Compiler string

const (
	GNU        Compiler = "gnu"
	MSVC       Compiler = "msvc"
	Clang      Compiler = "llvm"
	AnyCompiler Compiler = "any"
)

// epochUnknown is the instant used for a build date that was never recorded.
var epochUnknown = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Properties is the eight-attribute identity tuple described in the data
// model: (name, version, os, arch, kind, compiler, glibc, build_date).
//
// Invalid reports true only for values produced by a failed parse; a
// zero Properties value is not marked invalid.
type Properties struct {
	Name     string
	Version  string
	OS       OS
	Arch     Arch
	Kind     Kind
	Compiler Compiler
	Glibc    string
	BuildDate time.Time

	// invalid is set by Parse when the input was malformed; the caller
	// treats such a value as absent.
	invalid bool
}

// New returns a Properties value with BuildDate defaulted to the
// "unknown" epoch (2000-01-01) when the zero time.Time is given.
func New(name, version string, os OS, arch Arch, kind Kind, compiler Compiler, glibc string, buildDate time.Time) Properties {
	if buildDate.IsZero() {
		buildDate = epochUnknown
	}
	return Properties{
		Name:      name,
		Version:   version,
		OS:        os,
		Arch:      arch,
		Kind:      kind,
		Compiler:  compiler,
		Glibc:     glibc,
		BuildDate: buildDate.Truncate(time.Second),
	}
}

// Invalid reports whether p resulted from a failed parse and should be
// treated as if it were absent.
func (p Properties) Invalid() bool { return p.invalid }

// isWildcard reports whether s stands for "unconstrained" in a query:
// the empty string, "*", or "any" (case-insensitively).
func isWildcard(s string) bool {
	return s == "" || s == "*" || strings.EqualFold(s, "any")
}
