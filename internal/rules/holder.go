package rules

import "sync"

// Holder provides thread-safe access to the current catalog and supports
// atomic swapping when rules are reloaded. Evaluation runs read one catalog
// snapshot for their whole tick; a swap only affects later ticks.
type Holder struct {
	mu      sync.RWMutex
	catalog *Catalog
}

// NewHolder creates a holder with the given initial catalog.
func NewHolder(catalog *Catalog) *Holder {
	return &Holder{catalog: catalog}
}

// Current returns the catalog in effect.
// Thread-safe: uses read lock for concurrent access.
func (h *Holder) Current() *Catalog {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.catalog
}

// Swap atomically replaces the catalog with a new one.
// Thread-safe: uses write lock to ensure atomic update.
func (h *Holder) Swap(catalog *Catalog) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.catalog = catalog
}

// RuleCount returns the number of rules in the current catalog.
func (h *Holder) RuleCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.catalog.Len()
}
