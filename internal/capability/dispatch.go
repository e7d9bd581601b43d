// SPDX-License-Identifier: MPL-2.0

package capability

import (
	"context"
	"sync"
)

type (
	// Invoker calls one capability with a single structured input.
	Invoker func(ctx context.Context, input any) (any, error)

	// Dispatcher presents capabilities as namespace -> method -> invoker
	// without any namespace or method being declared in advance. Namespaces
	// and invokers are built on first access and reused for the lifetime of
	// the Dispatcher.
	Dispatcher struct {
		registry *Registry

		mu         sync.Mutex
		namespaces map[string]*Namespace
	}

	// Namespace is the second level of a Dispatcher, scoped to one namespace.
	Namespace struct {
		name     string
		registry *Registry

		mu      sync.Mutex
		methods map[string]Invoker
	}
)

// NewDispatcher creates a Dispatcher over registry. The registry is shared by
// reference, so resolutions made through one Dispatcher are visible to every
// other Dispatcher over the same registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		namespaces: make(map[string]*Namespace),
	}
}

// Namespace returns the memoized namespace object for name.
func (d *Dispatcher) Namespace(name string) *Namespace {
	d.mu.Lock()
	defer d.mu.Unlock()

	ns, ok := d.namespaces[name]
	if !ok {
		ns = &Namespace{
			name:     name,
			registry: d.registry,
			methods:  make(map[string]Invoker),
		}
		d.namespaces[name] = ns
	}
	return ns
}

// Call is shorthand for d.Namespace(namespace).Method(method)(ctx, input).
func (d *Dispatcher) Call(ctx context.Context, namespace, method string, input any) (any, error) {
	return d.Namespace(namespace).Method(method)(ctx, input)
}

// Name returns the namespace name.
func (n *Namespace) Name() string {
	return n.name
}

// Method returns the memoized invoker for method.
func (n *Namespace) Method(method string) Invoker {
	n.mu.Lock()
	defer n.mu.Unlock()

	inv, ok := n.methods[method]
	if !ok {
		inv = n.invoker(method)
		n.methods[method] = inv
	}
	return inv
}

// invoker resolves the binding on every call (a cache hit after the first
// success) so that a failed resolution can succeed later. Every fault is
// wrapped in a *CallError carrying the call's context.
func (n *Namespace) invoker(method string) Invoker {
	return func(ctx context.Context, input any) (any, error) {
		binding, err := n.registry.Resolve(ctx, n.name, method)
		if err != nil {
			return nil, &CallError{Namespace: n.name, Method: method, Input: input, Cause: err}
		}
		out, err := binding.Invoke(ctx, input)
		if err != nil {
			return nil, &CallError{Namespace: n.name, Method: method, Input: input, Cause: err}
		}
		return out, nil
	}
}
