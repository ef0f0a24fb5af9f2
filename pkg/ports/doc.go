// Package ports defines the collaborator contracts consumed and exposed
// by the pipeline core: catalog loading, thread state and trace
// persistence, instruction sets, stage logic dispatch and distributed
// locking. Implementations live in pkg/adapters.
package ports
