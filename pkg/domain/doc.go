// Package domain contains the core types of the stage pipeline:
// stages, transitions, thread state, intents, trace records and the
// error taxonomy. It has no dependencies on storage or transport.
package domain
