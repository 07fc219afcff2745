package identity

import (
	"sync"

	"github.com/gobwas/glob"
)

// globCache memoizes compiled glob patterns, the same per-pattern caching
// strategy distri's package resolver uses for compiled package globs.
var globCache = struct {
	sync.Mutex
	c map[string]glob.Glob
}{c: make(map[string]glob.Glob)}

func compileGlob(pattern string) (glob.Glob, error) {
	globCache.Lock()
	g, ok := globCache.c[pattern]
	globCache.Unlock()
	if ok {
		return g, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, err
	}
	globCache.Lock()
	globCache.c[pattern] = g
	globCache.Unlock()
	return g, nil
}

// globMatch reports whether candidate matches the glob query. A pattern
// that fails to compile matches nothing.
func globMatch(query, candidate string) bool {
	g, err := compileGlob(query)
	if err != nil {
		return false
	}
	return g.Match(candidate)
}

// matchAttribute implements the per-attribute rule from the data model:
// a wildcardable attribute matches automatically when either side is a
// wildcard; every attribute (wildcardable or not) otherwise falls back to
// glob matching the query against the candidate.
func matchAttribute(query, candidate string, wildcardable bool) bool {
	if wildcardable && (isWildcard(query) || isWildcard(candidate)) {
		return true
	}
	return globMatch(query, candidate)
}

// Match reports whether candidate satisfies query under the rules of the
// data model: name and version are mandatory and always glob-matched;
// os/arch/kind/compiler/glibc are wildcardable.
func Match(query, candidate Properties) bool {
	if !matchAttribute(query.Name, candidate.Name, false) {
		return false
	}
	if !matchAttribute(query.Version, candidate.Version, false) {
		return false
	}
	if !matchAttribute(string(query.OS), string(candidate.OS), true) {
		return false
	}
	if !matchAttribute(string(query.Arch), string(candidate.Arch), true) {
		return false
	}
	if !matchAttribute(string(query.Kind), string(candidate.Kind), true) {
		return false
	}
	if !matchAttribute(string(query.Compiler), string(candidate.Compiler), true) {
		return false
	}
	if !matchAttribute(query.Glibc, candidate.Glibc, true) {
		return false
	}
	return true
}
