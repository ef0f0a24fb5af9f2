// Package flags holds the process-wide feature flag set gating pipeline
// behavior. Flags are advisory configuration, not safety-critical
// state: values are not type-checked beyond what callers encode.
//
// The controller is explicitly constructed and injected; there is no
// package-level singleton.
package flags

import (
	"sync"
	"sync/atomic"

	"github.com/veloir/stagehand/pkg/domain"
)

// Well-known flag names consulted by the core.
const (
	UseLLMFallback      = "useLLMFallback"
	ConfidenceThreshold = "confidenceThreshold"
)

// Controller owns the mutable flag set. Reads are lock-free value
// swaps: a read concurrent with an update observes either the old or
// the new complete set, never a partial merge. Writers serialize so
// concurrent updates apply in arrival order, last-write-wins per key.
type Controller struct {
	mu      sync.Mutex
	current atomic.Value // domain.FlagSet
}

// NewController creates a controller seeded with the given flags.
func NewController(initial domain.FlagSet) *Controller {
	c := &Controller{}
	if initial == nil {
		initial = domain.FlagSet{}
	}
	c.current.Store(initial.Clone())
	return c
}

// Get returns an immutable copy of the active flag set.
func (c *Controller) Get() domain.FlagSet {
	return c.current.Load().(domain.FlagSet).Clone()
}

// Update merges the named keys into the flag set and returns the new
// copy. Only the named keys are replaced; all other keys are unchanged.
func (c *Controller) Update(partial domain.FlagSet) domain.FlagSet {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.current.Load().(domain.FlagSet).Clone()
	for k, v := range partial {
		next[k] = v
	}
	c.current.Store(next)
	return next.Clone()
}
