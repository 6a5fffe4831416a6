package registry

import "github.com/homelabforge/tidewatch/internal/model"

// Set holds one Client per registry, shared across every container check
// so the tag cache and rate-limit state are genuinely process-wide.
type Set struct {
	clients map[model.Registry]Client
}

// NewSet builds a Set with one client per supported registry. cred is
// consulted by every backend for optional stored credentials; store is the
// persistent cache/rate-limit backend (nil disables caching, useful in
// tests).
func NewSet(cred CredentialLookup, store cacheStore) *Set {
	return &Set{clients: map[model.Registry]Client{
		model.RegistryDockerHub: NewDockerHub(cred, store),
		model.RegistryGHCR: NewGHCR(cred, store),
		model.RegistryLSCR: NewLSCR(cred, store),
		model.RegistryGCR: NewGCR(cred, store),
		model.RegistryQuay: NewQuay(cred, store),
	}}
}

// For resolves the client responsible for an image, either from an
// explicit registry (when already known for a tracked container) or by
// inspecting the image reference's host.
func (s *Set) For(image string, registry model.Registry) Client {
	if registry == "" {
		registry = model.NormalizeRegistryHost(Host(image))
	}
	if c, ok := s.clients[registry]; ok {
		return c
	}
	return s.clients[model.RegistryDockerHub]
}
