package identity

import "sort"

// Less implements the total order over Properties: lexicographic across
// (name, version, os, arch, kind, compiler, glibc, build_date), using
// component-wise version comparison for version and glibc.
func Less(a, b Properties) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	if a.Version != b.Version {
		return VersionLess(a.Version, b.Version)
	}
	if a.OS != b.OS {
		return a.OS < b.OS
	}
	if a.Arch != b.Arch {
		return a.Arch < b.Arch
	}
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	if a.Compiler != b.Compiler {
		return a.Compiler < b.Compiler
	}
	if a.Glibc != b.Glibc {
		return VersionLess(a.Glibc, b.Glibc)
	}
	return a.BuildDate.Before(b.BuildDate)
}

// Equal reports whether a and b have bitwise-equal textual identities,
// i.e. every attribute compares equal.
func Equal(a, b Properties) bool {
	return a.Name == b.Name &&
		a.Version == b.Version &&
		a.OS == b.OS &&
		a.Arch == b.Arch &&
		a.Kind == b.Kind &&
		a.Compiler == b.Compiler &&
		a.Glibc == b.Glibc &&
		a.BuildDate.Equal(b.BuildDate)
}

// SortProperties sorts a slice of Properties in place by the total order.
// The sort is stable so that equal-identity entries keep their relative
// order.
func SortProperties(ps []Properties) {
	sort.SliceStable(ps, func(i, j int) bool { return Less(ps[i], ps[j]) })
}
