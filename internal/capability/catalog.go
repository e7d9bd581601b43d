// SPDX-License-Identifier: MPL-2.0

package capability

import (
	"fmt"
	"slices"
	"sync"
)

// NativeLocationPrefix prefixes the location of in-process implementations.
const NativeLocationPrefix = "native:"

type (
	// NativeSource locates in-process implementations.
	NativeSource interface {
		// Lookup returns the registered implementation for key. The value is
		// checked for a usable entry point by the Registry, not by the source.
		Lookup(key Key) (any, bool)
		// Location describes where key would be found, whether or not it exists.
		Location(key Key) string
	}

	// Descriptor describes one native capability.
	Descriptor struct {
		Key Key
		// Summary is a one-line description shown in listings.
		Summary string
		// Input is a zero value of the input type, used for schema generation.
		// May be nil for untyped capabilities.
		Input any
		// Impl should be a Capability or a func(context.Context, any) (any, error).
		Impl any
	}

	// Catalog is a NativeSource backed by an in-memory table of descriptors.
	// It is safe for concurrent use.
	Catalog struct {
		mu      sync.RWMutex
		entries map[Key]Descriptor
	}
)

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[Key]Descriptor)}
}

// Register adds a descriptor to the catalog.
// Panics if the key is invalid or already registered.
func (c *Catalog) Register(d Descriptor) {
	if err := d.Key.Validate(); err != nil {
		panic(fmt.Sprintf("capability: %v", err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[d.Key]; exists {
		panic(fmt.Sprintf("capability: %s already registered", d.Key))
	}
	c.entries[d.Key] = d
}

// Lookup returns the implementation registered for key.
func (c *Catalog) Lookup(key Key) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return d.Impl, true
}

// Location returns "native:<namespace>/<method>".
func (c *Catalog) Location(key Key) string {
	return NativeLocationPrefix + key.Namespace + "/" + key.Method
}

// Describe returns the descriptor registered for key.
func (c *Catalog) Describe(key Key) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.entries[key]
	return d, ok
}

// Descriptors returns all descriptors ordered by key.
func (c *Catalog) Descriptors() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Descriptor, 0, len(c.entries))
	for _, d := range c.entries {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Descriptor) int { return compareKeys(a.Key, b.Key) })
	return out
}

// Keys returns every registered key in order.
func (c *Catalog) Keys() []Key {
	descriptors := c.Descriptors()
	keys := make([]Key, len(descriptors))
	for i, d := range descriptors {
		keys[i] = d.Key
	}
	return keys
}
