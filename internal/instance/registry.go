// Package instance tracks which run currently owns each emulator instance.
//
// The Registry is the single point that prevents two runs from driving the
// same instance. Reserve is an atomic check-and-set; Release only succeeds
// for the owning run.
package instance

import (
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry maps instance names to the run id holding them.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	owners map[string]string
	logger Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		owners: make(map[string]string),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Reserve assigns instance to runID if no run holds it.
// It returns false when the instance is already reserved, including by runID itself.
func (r *Registry) Reserve(instance, runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, held := r.owners[instance]; held {
		r.logger.Debug("instance busy", "instance", instance, "owner", owner, "run_id", runID)
		return false
	}
	r.owners[instance] = runID
	r.logger.Debug("instance reserved", "instance", instance, "run_id", runID)
	return true
}

// Release frees instance if runID owns it. A release by any other run is ignored.
func (r *Registry) Release(instance, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, held := r.owners[instance]
	if !held {
		return
	}
	if owner != runID {
		r.logger.Warn("release by non-owner ignored", "instance", instance, "owner", owner, "run_id", runID)
		return
	}
	delete(r.owners, instance)
	r.logger.Debug("instance released", "instance", instance, "run_id", runID)
}

// IsReserved reports whether any run holds instance.
func (r *Registry) IsReserved(instance string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, held := r.owners[instance]
	return held
}

// Owner returns the run id holding instance.
func (r *Registry) Owner(instance string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, held := r.owners[instance]
	return owner, held
}

// ByRun returns an instance held by runID. When the run holds several, the
// lexically smallest name is returned.
func (r *Registry) ByRun(runID string) (string, bool) {
	names := r.InstancesOf(runID)
	if len(names) == 0 {
		return "", false
	}
	return names[0], true
}

// InstancesOf returns every instance held by runID, sorted by name.
func (r *Registry) InstancesOf(runID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, owner := range r.owners {
		if owner == runID {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the instance -> run id table.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.owners))
	for k, v := range r.owners {
		out[k] = v
	}
	return out
}
