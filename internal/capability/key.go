// SPDX-License-Identifier: MPL-2.0

package capability

import (
	"regexp"
	"strconv"
	"strings"
)

// identifierPattern restricts namespaces and methods to names that cannot
// escape the tools directory when joined into a filesystem path.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// Key identifies a capability by namespace and method.
type Key struct {
	Namespace string
	Method    string
}

// NewKey creates a Key from a namespace and a method.
func NewKey(namespace, method string) Key {
	return Key{Namespace: namespace, Method: method}
}

// ParseKey parses a dotted "namespace.method" string.
// The method is everything after the first dot.
func ParseKey(s string) (Key, error) {
	ns, method, ok := strings.Cut(s, ".")
	if !ok {
		return Key{}, &InvalidKeyError{Key: Key{Namespace: s}, Reason: "expected namespace.method"}
	}
	k := NewKey(ns, method)
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// String returns the dotted form of the key.
func (k Key) String() string {
	return k.Namespace + "." + k.Method
}

// Validate returns an *InvalidKeyError when either part of the key is not a
// plain identifier.
func (k Key) Validate() error {
	if !identifierPattern.MatchString(k.Namespace) {
		return &InvalidKeyError{Key: k, Reason: "invalid namespace " + strconv.Quote(k.Namespace)}
	}
	if !identifierPattern.MatchString(k.Method) {
		return &InvalidKeyError{Key: k, Reason: "invalid method " + strconv.Quote(k.Method)}
	}
	return nil
}

// compareKeys orders keys by namespace, then method.
func compareKeys(a, b Key) int {
	if c := strings.Compare(a.Namespace, b.Namespace); c != 0 {
		return c
	}
	return strings.Compare(a.Method, b.Method)
}
