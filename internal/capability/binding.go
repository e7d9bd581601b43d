// SPDX-License-Identifier: MPL-2.0

package capability

import (
	"context"
	"encoding/json"
	"fmt"
)

// Binding kinds.
const (
	BindingNative  BindingKind = "native"
	BindingProcess BindingKind = "process"
)

type (
	// BindingKind tells how a resolved capability is executed.
	BindingKind string

	// Capability is the single entry point every native implementation exposes.
	Capability interface {
		Invoke(ctx context.Context, input any) (any, error)
	}

	// Func adapts an ordinary function to the Capability interface.
	Func func(ctx context.Context, input any) (any, error)

	// Binding is a resolved, callable implementation of one Key.
	Binding interface {
		// Key returns the key this binding serves.
		Key() Key
		// Kind reports whether the binding is native or process-backed.
		Kind() BindingKind
		// Location describes where the implementation was found.
		Location() string
		// Invoke calls the implementation with a single structured input.
		Invoke(ctx context.Context, input any) (any, error)
	}

	nativeBinding struct {
		key      Key
		location string
		impl     Capability
	}
)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, input any) (any, error) {
	return f(ctx, input)
}

func (b *nativeBinding) Key() Key          { return b.key }
func (b *nativeBinding) Kind() BindingKind { return BindingNative }
func (b *nativeBinding) Location() string  { return b.location }

// Invoke decodes raw JSON input into plain data (maps, slices, float64,
// string, bool, nil) before calling the implementation.
func (b *nativeBinding) Invoke(ctx context.Context, input any) (any, error) {
	if raw, ok := input.(json.RawMessage); ok {
		var plain any
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &plain); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
			}
		}
		input = plain
	}
	return b.impl.Invoke(ctx, input)
}

// asCapability returns the entry point of a registered native implementation.
func asCapability(impl any) (Capability, bool) {
	switch v := impl.(type) {
	case Capability:
		return v, v != nil
	case func(context.Context, any) (any, error):
		return Func(v), v != nil
	default:
		return nil, false
	}
}
