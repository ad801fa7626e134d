// Package features tracks cluster-wide feature enablement. A feature
// becomes enabled once every node in the cluster supports it; this
// package only exposes the local view and lets components react when a
// feature turns on.
package features

import (
	"sync"
)

// Feature names a cluster-wide feature
type Feature string

const (
	// FeatureSupportsRaft means every node supports metadata consensus;
	// enabling it triggers the group 0 upgrade procedure on legacy clusters
	FeatureSupportsRaft Feature = "supports_raft"
)

// Callback is invoked when a feature becomes enabled. It runs on the
// enabling call stack, so implementations must not block; long work is
// handed off to a background task by the subscriber.
type Callback func()

// ListenerRegistration deregisters a listener when no longer needed
type ListenerRegistration struct {
	cancel func()
	once   sync.Once
}

// Cancel removes the listener; safe to call more than once
func (r *ListenerRegistration) Cancel() {
	if r == nil {
		return
	}
	r.once.Do(r.cancel)
}

// Service tracks feature enablement and listener registrations
type Service struct {
	mu        sync.Mutex
	enabled   map[Feature]bool
	listeners map[Feature]map[int]Callback
	nextID    int
}

// NewService creates a feature service with the given features already enabled
func NewService(enabled ...Feature) *Service {
	s := &Service{
		enabled:   make(map[Feature]bool),
		listeners: make(map[Feature]map[int]Callback),
	}
	for _, f := range enabled {
		s.enabled[f] = true
	}
	return s
}

// IsEnabled reports whether the feature is enabled cluster-wide
func (s *Service) IsEnabled(f Feature) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled[f]
}

// Enable marks the feature enabled and fires registered listeners.
// Enabling an already-enabled feature is a no-op.
func (s *Service) Enable(f Feature) {
	s.mu.Lock()
	if s.enabled[f] {
		s.mu.Unlock()
		return
	}
	s.enabled[f] = true
	callbacks := make([]Callback, 0, len(s.listeners[f]))
	for _, cb := range s.listeners[f] {
		callbacks = append(callbacks, cb)
	}
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// RegisterListener registers a callback fired when the feature becomes
// enabled. If the feature is already enabled, the callback fires before
// RegisterListener returns.
func (s *Service) RegisterListener(f Feature, cb Callback) *ListenerRegistration {
	s.mu.Lock()
	if s.enabled[f] {
		s.mu.Unlock()
		cb()
		return &ListenerRegistration{cancel: func() {}}
	}

	if s.listeners[f] == nil {
		s.listeners[f] = make(map[int]Callback)
	}
	id := s.nextID
	s.nextID++
	s.listeners[f][id] = cb
	s.mu.Unlock()

	return &ListenerRegistration{cancel: func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners[f], id)
	}}
}
