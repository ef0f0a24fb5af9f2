package ports

import (
	"context"

	"github.com/veloir/stagehand/pkg/domain"
)

// CatalogLoader defines how the engine retrieves the stage catalog.
// The core accesses the catalog read-only; stage edits happen out-of-band.
type CatalogLoader interface {
	// LoadCatalog returns the full stage catalog including the entry
	// stage id.
	LoadCatalog(ctx context.Context) (domain.Catalog, error)
}

// Watchable defines an interface for loaders that can notify about
// backend changes, typically for hot-reload in dev mode.
type Watchable interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}
