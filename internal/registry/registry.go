// Package registry holds the process's stream table: one StreamDefinition
// per configured path, built once at startup and never mutated afterwards.
package registry

import "rtsp2ws/pkg/models"

// Registry maps a stream path to its StreamDefinition. It is built once by
// the supervisor and is immutable thereafter — the core never synthesises
// streams on demand.
type Registry map[string]*models.StreamDefinition

// New builds a Registry from the given stream definitions, keyed by path.
func New(streams []*models.StreamDefinition) Registry {
	r := make(Registry, len(streams))
	for _, s := range streams {
		r[s.Path] = s
	}
	return r
}

// Lookup returns the StreamDefinition for an exact, case-sensitive path
// match, or false if no such stream is registered.
func (r Registry) Lookup(path string) (*models.StreamDefinition, bool) {
	s, ok := r[path]
	return s, ok
}
