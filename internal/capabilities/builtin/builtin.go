// SPDX-License-Identifier: MPL-2.0

// Package builtin assembles the native capabilities shipped with ptc.
package builtin

import (
	"github.com/invopop/jsonschema"

	"github.com/ptcrun/ptc/internal/capabilities/fscap"
	"github.com/ptcrun/ptc/internal/capabilities/gitcap"
	"github.com/ptcrun/ptc/internal/capabilities/httpcap"
	"github.com/ptcrun/ptc/internal/capabilities/searchcap"
	"github.com/ptcrun/ptc/internal/capabilities/shellcap"
	"github.com/ptcrun/ptc/internal/capability"
)

// Catalog returns a new catalog holding every built-in capability.
func Catalog() *capability.Catalog {
	c := capability.NewCatalog()
	fscap.Register(c)
	gitcap.Register(c)
	httpcap.Register(c)
	searchcap.Register(c)
	shellcap.Register(c)
	return c
}

// InputSchema returns the JSON Schema of a descriptor's input, or nil when
// the capability is untyped.
func InputSchema(d capability.Descriptor) *jsonschema.Schema {
	if d.Input == nil {
		return nil
	}
	r := &jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	s := r.Reflect(d.Input)
	s.Title = d.Key.String()
	s.Description = d.Summary
	return s
}
