// SPDX-License-Identifier: MPL-2.0

// Package searchcap implements the search.* capabilities: content search
// (grep, or rg through the host's ripgrep) and file search by name, size
// and age (find).
package searchcap

import (
	"github.com/ptcrun/ptc/internal/capability"
)

// Namespace is the capability namespace of this package.
const Namespace = "search"

// Register adds the search.* capabilities to catalog.
func Register(catalog *capability.Catalog) {
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "grep"),
		Summary: "Search file contents for a pattern",
		Input:   GrepInput{},
		Impl:    capability.Typed(Grep),
	})
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "rg"),
		Summary: "Search file contents with ripgrep",
		Input:   RgInput{},
		Impl:    capability.Typed(Rg),
	})
	catalog.Register(capability.Descriptor{
		Key:     capability.NewKey(Namespace, "find"),
		Summary: "Find files and directories by name, size or modification time",
		Input:   FindInput{},
		Impl:    capability.Typed(Find),
	})
}
