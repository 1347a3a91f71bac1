// Package tenant maps caller identities to vector index namespaces.
//
// Every authenticated tenant gets a private namespace; anonymous callers
// share a fixed read-only namespace seeded by an operator bootstrap
// process. The mapping is pure and total: it never fails and never
// touches storage.
package tenant

import "strings"

// DefaultNamespace is the shared namespace for anonymous callers when no
// override is configured.
const DefaultNamespace = "shared_default"

// userNamespacePrefix prefixes every private tenant namespace.
const userNamespacePrefix = "user_"

// Router resolves a tenant identity to a vector index namespace.
type Router struct {
	defaultNamespace string
}

// NewRouter creates a namespace router. An empty defaultNamespace falls
// back to DefaultNamespace.
func NewRouter(defaultNamespace string) *Router {
	if defaultNamespace == "" {
		defaultNamespace = DefaultNamespace
	}
	return &Router{defaultNamespace: sanitizeIdentifier(defaultNamespace)}
}

// Resolve returns the namespace for the given tenant ID. An empty tenant
// ID denotes an anonymous caller and resolves to the shared default
// namespace; anything else resolves to that tenant's private namespace.
func (r *Router) Resolve(tenantID string) string {
	if tenantID == "" {
		return r.defaultNamespace
	}
	return userNamespacePrefix + sanitizeIdentifier(strings.ToLower(tenantID))
}

// Default returns the shared default namespace.
func (r *Router) Default() string {
	return r.defaultNamespace
}

// IsDefault reports whether ns is the shared default namespace.
func (r *Router) IsDefault(ns string) bool {
	return ns == r.defaultNamespace
}

// sanitizeIdentifier ensures the ID is valid for vector index namespace
// names. Keeps only lowercase alphanumeric characters and underscores.
func sanitizeIdentifier(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "anonymous"
	}
	return result.String()
}
