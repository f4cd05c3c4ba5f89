// ABOUTME: Versioned cache namespace names
// ABOUTME: Builds <prefix>-<kind>-<version> names and recognises stale generations

package cache

import (
	"fmt"
	"strings"
)

// Kind is the role of a namespace.
type Kind string

const (
	KindStatic  Kind = "static"
	KindDynamic Kind = "dynamic"
	KindData    Kind = "data"
)

// Namespaces is the current generation of namespace names.
type Namespaces struct {
	Prefix  string
	Version string
}

// Name returns the namespace for kind in this generation.
func (n Namespaces) Name(kind Kind) string {
	return fmt.Sprintf("%s-%s-%s", n.Prefix, kind, n.Version)
}

// Current lists every namespace of this generation, static first.
func (n Namespaces) Current() []string {
	return []string{n.Name(KindStatic), n.Name(KindDynamic), n.Name(KindData)}
}

// Stale reports whether name belongs to this prefix but not this generation.
// Names from other prefixes are never stale.
func (n Namespaces) Stale(name string) bool {
	if !strings.HasPrefix(name, n.Prefix+"-") {
		return false
	}
	for _, cur := range n.Current() {
		if name == cur {
			return false
		}
	}
	return true
}
