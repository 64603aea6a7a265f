package cache

import (
	"fmt"
	"sort"
	"strings"
)

// Key identifies a cached logical query. Semantically identical queries must
// compose to the same key string so they collide on the same cache slot.
type Key struct {
	// Namespace separates cache views (e.g. "resource", "analytics").
	Namespace string

	// Resource is the record-type name (e.g. "agent", "channel").
	Resource string

	// ID is the record identifier or address, empty for list queries.
	ID string

	// Filters are the query filter parameters.
	Filters map[string]string
}

// String generates a deterministic cache key.
// Format: namespace:resource:id:filter1=val1:filter2=val2
// Filters are sorted by name for determinism.
func (k Key) String() string {
	parts := make([]string, 0, 3+len(k.Filters))

	if k.Namespace != "" {
		parts = append(parts, k.Namespace)
	}
	if k.Resource != "" {
		parts = append(parts, k.Resource)
	}
	if k.ID != "" {
		parts = append(parts, k.ID)
	}

	if len(k.Filters) > 0 {
		names := make([]string, 0, len(k.Filters))
		for name := range k.Filters {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Filters[name]))
		}
	}

	return strings.Join(parts, ":")
}
