// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by ptc tests: a controllable
// clock for progress timestamps, file fixtures for tools directories and
// configuration, and cleanup of stoppable servers.
package testutil
