// Package session serializes pipeline turns per conversation thread.
// At most one turn is in flight for a thread id at any time; concurrency
// across distinct threads is unconstrained.
package session
