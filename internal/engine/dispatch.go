// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"maps"
	"slices"

	"github.com/dop251/goja"

	"github.com/ptcrun/ptc/internal/capability"
)

type (
	// capabilitiesObject is the script's `capabilities` global. Any property
	// name is a namespace; each is built on first access and memoized.
	capabilitiesObject struct {
		r          *run
		namespaces map[string]goja.Value
	}

	// namespaceObject is capabilities.<namespace>. Any property name is a
	// method whose function object is built on first access and memoized.
	namespaceObject struct {
		r       *run
		ns      *capability.Namespace
		methods map[string]goja.Value
	}
)

// reserved reports whether key should fall through to Object.prototype
// instead of naming a capability. "then" keeps the objects from looking like
// thenables to await.
func (r *run) reserved(key string) bool {
	if key == "then" || key == "toJSON" {
		return true
	}
	return r.objectProto.Get(key) != nil
}

func (o *capabilitiesObject) Get(key string) goja.Value {
	if o.r.reserved(key) {
		return nil
	}
	if v, ok := o.namespaces[key]; ok {
		return v
	}
	v := o.r.vm.NewDynamicObject(&namespaceObject{
		r:       o.r,
		ns:      o.r.dispatcher.Namespace(key),
		methods: make(map[string]goja.Value),
	})
	o.namespaces[key] = v
	return v
}

func (o *capabilitiesObject) Set(string, goja.Value) bool { return false }
func (o *capabilitiesObject) Has(key string) bool         { return !o.r.reserved(key) }
func (o *capabilitiesObject) Delete(string) bool          { return false }
func (o *capabilitiesObject) Keys() []string              { return slices.Sorted(maps.Keys(o.namespaces)) }

func (o *namespaceObject) Get(key string) goja.Value {
	if o.r.reserved(key) {
		return nil
	}
	if v, ok := o.methods[key]; ok {
		return v
	}
	namespace, method := o.ns.Name(), key
	invoke := o.ns.Method(method)
	v := o.r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return o.r.call(namespace, method, invoke, call.Argument(0))
	})
	o.methods[key] = v
	return v
}

func (o *namespaceObject) Set(string, goja.Value) bool { return false }
func (o *namespaceObject) Has(key string) bool         { return !o.r.reserved(key) }
func (o *namespaceObject) Delete(string) bool          { return false }
func (o *namespaceObject) Keys() []string              { return slices.Sorted(maps.Keys(o.methods)) }
