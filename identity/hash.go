package identity

import (
	"crypto/sha1"
	"encoding/hex"
)

// textualFields returns every attribute's textual form, in attribute
// order, the order Hash concatenates them in. (Format uses its own
// layout, which places build_date right after the version.)
func (p Properties) textualFields() []string {
	return []string{
		p.Name,
		p.Version,
		string(p.OS),
		string(p.Arch),
		string(p.Kind),
		string(p.Compiler),
		p.Glibc,
		p.BuildDate.UTC().Format(buildDateLayout),
	}
}

// Hash returns the package's storage key: SHA-1 over the concatenation of
// every attribute's textual form, in attribute order. Two packages collide
// iff their identities are bitwise equal in their textual forms.
func (p Properties) Hash() string {
	h := sha1.New()
	for _, f := range p.textualFields() {
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// DirName returns the name the package's directory carries in the local
// store: "<name><hash>".
func (p Properties) DirName() string {
	return p.Name + p.Hash()
}
