package store

import (
	"fmt"
	"os"
	"time"

	"github.com/edmhq/edm/identity"
)

// Prune removes every local package whose installed tree's sidecar
// build_date is older than olderThan, as in the original tool's
// "pack clean" pruning of stale builds. It returns the properties of
// every package removed.
func (s *Store) Prune(olderThan time.Duration) ([]identity.Properties, error) {
	cutoff := time.Now().Add(-olderThan)

	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []identity.Properties
	var kept []Dependency
	for _, d := range s.deps {
		if d.Properties.BuildDate.Before(cutoff) {
			if err := os.RemoveAll(d.BasePath); err != nil {
				return removed, fmt.Errorf("store: prune %s: %w", d.BasePath, err)
			}
			removed = append(removed, d.Properties)
			continue
		}
		kept = append(kept, d)
	}
	s.deps = kept
	return removed, nil
}
