// Package middleware wraps thread state stores with cross-cutting
// behavior such as PII masking and write logging.
package middleware

import "github.com/veloir/stagehand/pkg/ports"

// Middleware allows wrapping a ThreadStateStore to add behavior.
type Middleware func(ports.ThreadStateStore) ports.ThreadStateStore

// Chain applies middlewares left to right: the first one sees the call
// first.
func Chain(store ports.ThreadStateStore, mws ...Middleware) ports.ThreadStateStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
