// SPDX-License-Identifier: MPL-2.0

package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// DefaultToolsDir is where fallback scripts are looked up when no directory
// is configured.
const DefaultToolsDir = ".ptc/tools"

type (
	// Registry resolves capability keys to bindings and memoizes the result.
	//
	// Resolution for a key happens at most once per Registry: the first
	// successful Resolve caches the binding and later calls reuse it. Failed
	// resolutions are not cached, so a script added to the tools directory
	// becomes visible on the next call. The lock is held across discovery so
	// that concurrent first calls for the same key still discover once.
	Registry struct {
		native   NativeSource
		toolsDir string
		runner   Runner
		logger   *log.Logger

		mu       sync.Mutex
		bindings map[Key]Binding
	}

	// Option configures a Registry.
	Option func(*Registry)

	// keyLister is implemented by native sources that can enumerate their keys.
	keyLister interface {
		Keys() []Key
	}
)

// WithNative sets the source of in-process implementations.
func WithNative(src NativeSource) Option {
	return func(r *Registry) {
		r.native = src
	}
}

// WithToolsDir sets the root directory of fallback scripts.
func WithToolsDir(dir string) Option {
	return func(r *Registry) {
		if dir != "" {
			r.toolsDir = dir
		}
	}
}

// WithRunner sets how fallback scripts are executed.
func WithRunner(runner Runner) Option {
	return func(r *Registry) {
		if runner != nil {
			r.runner = runner
		}
	}
}

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates a Registry. Without options it has no native source,
// looks for scripts under DefaultToolsDir and spawns them with bash.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		toolsDir: DefaultToolsDir,
		runner:   ShellRunner{},
		logger:   log.New(io.Discard),
		bindings: make(map[Key]Binding),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ToolsDir returns the fallback script root.
func (r *Registry) ToolsDir() string {
	return r.toolsDir
}

// ScriptPath returns where the fallback script for key would live.
func (r *Registry) ScriptPath(key Key) string {
	return filepath.Join(r.toolsDir, key.Namespace, key.Method+ScriptExt)
}

// Resolve returns the binding for namespace.method, discovering it on first use.
func (r *Registry) Resolve(ctx context.Context, namespace, method string) (Binding, error) {
	key := NewKey(namespace, method)
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bindings[key]; ok {
		return b, nil
	}

	b, err := r.discover(key)
	if err != nil {
		r.logger.Debug("capability resolution failed", "key", key, "error", err)
		return nil, err
	}
	r.bindings[key] = b
	r.logger.Debug("capability resolved", "key", key, "kind", b.Kind(), "location", b.Location())
	return b, nil
}

// discover runs the resolution order: native implementation, then fallback
// script, then NotFound.
func (r *Registry) discover(key Key) (Binding, error) {
	nativeLoc := r.nativeLocation(key)
	if r.native != nil {
		if impl, ok := r.native.Lookup(key); ok {
			c, ok := asCapability(impl)
			if !ok {
				return nil, &LoadError{
					Key:      key,
					Location: nativeLoc,
					Reason:   fmt.Sprintf("%T does not provide an Invoke entry point", impl),
				}
			}
			return &nativeBinding{key: key, location: nativeLoc, impl: c}, nil
		}
	}

	path := r.ScriptPath(key)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, &NotFoundError{Key: key, NativeLocation: nativeLoc, ProcessLocation: path}
	case err != nil:
		return nil, &LoadError{Key: key, Location: path, Reason: "cannot stat script", Cause: err}
	case info.IsDir():
		return nil, &LoadError{Key: key, Location: path, Reason: "path is a directory"}
	}

	if _, err := parseScript(path); err != nil {
		return nil, &LoadError{Key: key, Location: path, Reason: "script does not parse", Cause: err}
	}
	return &processBinding{key: key, path: path, runner: r.runner}, nil
}

func (r *Registry) nativeLocation(key Key) string {
	if r.native != nil {
		return r.native.Location(key)
	}
	return NativeLocationPrefix + key.Namespace + "/" + key.Method
}

// Resolved returns the keys whose bindings are cached, in order.
func (r *Registry) Resolved() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]Key, 0, len(r.bindings))
	for k := range r.bindings {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

// Reset drops every cached binding.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.bindings)
}

// Available lists every key that could resolve: all enumerable native keys
// plus every <namespace>/<method>.sh under the tools directory. A missing
// tools directory is not an error.
func (r *Registry) Available() ([]Key, error) {
	seen := make(map[Key]bool)
	var keys []Key
	add := func(k Key) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	if lister, ok := r.native.(keyLister); ok {
		for _, k := range lister.Keys() {
			add(k)
		}
	}

	namespaces, err := os.ReadDir(r.toolsDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read tools directory: %w", err)
	}
	for _, ns := range namespaces {
		if !ns.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(r.toolsDir, ns.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read tools directory: %w", err)
		}
		for _, e := range entries {
			method, ok := strings.CutSuffix(e.Name(), ScriptExt)
			if e.IsDir() || !ok {
				continue
			}
			k := NewKey(ns.Name(), method)
			if k.Validate() == nil {
				add(k)
			}
		}
	}

	slices.SortFunc(keys, compareKeys)
	return keys, nil
}
