package remote

import (
	"io"
	"sync"

	"github.com/edmhq/edm/identity"
)

// DeplistCache holds the in-memory copy of a remote's deplist.txt: the
// sole authoritative enumeration of that remote's contents. It is shared
// by every backend so the parse/format/query logic stays identical across
// HTTP, FTP, and folder remotes.
type DeplistCache struct {
	mu   sync.RWMutex
	list []identity.Properties
}

// Set replaces the cached deplist wholesale, e.g. after a fetch.
func (c *DeplistCache) Set(list []identity.Properties) {
	c.mu.Lock()
	c.list = list
	c.mu.Unlock()
}

// Append adds p to the cached deplist.
func (c *DeplistCache) Append(p identity.Properties) {
	c.mu.Lock()
	c.list = append(c.list, p)
	c.mu.Unlock()
}

// List returns a copy of the cached deplist.
func (c *DeplistCache) List() []identity.Properties {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]identity.Properties(nil), c.list...)
}

// Query returns every cached entry matching q, sorted by the total order.
func (c *DeplistCache) Query(q identity.Properties) []identity.Properties {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []identity.Properties
	for _, p := range c.list {
		if identity.Match(q, p) {
			out = append(out, p)
		}
	}
	identity.SortProperties(out)
	return out
}

// ParseDeplist parses the deplist.txt grammar: one-line Properties form,
// one per line, trailing blank lines tolerated. Exported so every backend
// (which may fetch deplist.txt by its own protocol) can reuse it.
func ParseDeplist(r io.Reader) ([]identity.Properties, error) {
	return parseDeplist(r)
}

// WriteDeplist writes list as deplist.txt.
func WriteDeplist(w io.Writer, list []identity.Properties) error {
	return writeDeplist(w, list)
}
