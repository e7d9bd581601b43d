// SPDX-License-Identifier: MPL-2.0

// Package capability resolves and dispatches namespaced capability calls.
//
// A capability is addressed by a Key (namespace and method, e.g. "fs.read").
// The Registry resolves a Key to a Binding exactly once per Registry lifetime,
// trying an in-process (native) implementation first and then a process-backed
// fallback script at <tools-dir>/<namespace>/<method>.sh. Only the decision of
// which backend serves a key is memoized: every call to a process-backed
// binding still starts a fresh process.
//
// The Dispatcher sits on top of a Registry and presents the two-level
// capabilities[namespace][method](input) shape used by scripts. Every fault it
// returns is a *CallError that names the namespace, the method and the input
// and wraps the original cause.
//
// Fault taxonomy (all usable with errors.Is / errors.As):
//
//   - ErrNotFound:        no native implementation and no fallback script
//   - ErrLoad:            an implementation was found but is malformed
//   - ErrProcess:         a fallback script exited with a non-zero status
//   - ErrInvalidKey:      the namespace or method is not a valid identifier
//   - ErrCapabilityFault: any fault surfaced through the Dispatcher
package capability
