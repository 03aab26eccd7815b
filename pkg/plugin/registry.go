package plugin

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
)

// Priority constants for built-in registration.
// Higher priority values override lower priority loaders with the same ID.
const (
	// PriorityDefault is the priority of the bundled built-ins.
	PriorityDefault = 0

	// PriorityOverride lets a private build replace a bundled built-in.
	PriorityOverride = 100
)

// DefaultOrder is the bootstrap order given to loaders that set none.
const DefaultOrder = 50

// Loader resolves a built-in plugin definition. It may do I/O.
type Loader func(ctx context.Context) (Definition, error)

// BuiltinInfo describes a bundled plugin loader.
type BuiltinInfo struct {
	// ID is the plugin identifier the loader produces.
	ID string

	// Priority decides which loader wins when two register the same ID.
	Priority int

	// Order is the bootstrap order. Lower values load first.
	Order int

	// Loader produces the definition.
	Loader Loader
}

// BuiltinRegistry holds the loaders for bundled plugins.
type BuiltinRegistry struct {
	mu      sync.RWMutex
	loaders map[string]BuiltinInfo
	order   []string
}

// NewBuiltinRegistry creates an empty registry.
func NewBuiltinRegistry() *BuiltinRegistry {
	return &BuiltinRegistry{
		loaders: make(map[string]BuiltinInfo),
		order:   make([]string, 0),
	}
}

// Register adds a loader. If one with the same ID exists, the higher
// priority wins; on equal priority the later registration wins.
func (r *BuiltinRegistry) Register(info BuiltinInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info.ID == "" {
		return fmt.Errorf("built-in id cannot be empty")
	}
	if info.Loader == nil {
		return fmt.Errorf("built-in %s: loader cannot be nil", info.ID)
	}
	if info.Order == 0 {
		info.Order = DefaultOrder
	}

	existing, exists := r.loaders[info.ID]
	if exists {
		if info.Priority < existing.Priority {
			log.Printf("Built-in %q registration skipped (priority %d < existing %d)",
				info.ID, info.Priority, existing.Priority)
			return nil
		}
		log.Printf("Built-in %q being overridden (priority %d -> %d)",
			info.ID, existing.Priority, info.Priority)
	}

	r.loaders[info.ID] = info
	if !exists {
		r.order = append(r.order, info.ID)
	}
	return nil
}

// Get returns the loader info for id, or nil.
func (r *BuiltinRegistry) Get(id string) *BuiltinInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.loaders[id]
	if !ok {
		return nil
	}
	return &info
}

// Has reports whether id is a built-in.
func (r *BuiltinRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.loaders[id]
	return ok
}

// List returns the loaders sorted by Order, then ID.
func (r *BuiltinRegistry) List() []BuiltinInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]BuiltinInfo, 0, len(r.loaders))
	for _, id := range r.order {
		result = append(result, r.loaders[id])
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// IDs returns the registered ids in registration order.
func (r *BuiltinRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// Clear removes every loader. Useful for testing.
func (r *BuiltinRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loaders = make(map[string]BuiltinInfo)
	r.order = make([]string, 0)
}

// Global registry of bundled plugins, filled from init() functions.
var builtins = NewBuiltinRegistry()

// RegisterBuiltin adds a loader to the global registry.
func RegisterBuiltin(info BuiltinInfo) error {
	return builtins.Register(info)
}

// Builtins returns the global registry.
func Builtins() *BuiltinRegistry {
	return builtins
}

// Static wraps an already-built definition as a Loader.
func Static(def Definition) Loader {
	return func(context.Context) (Definition, error) {
		return def, nil
	}
}
