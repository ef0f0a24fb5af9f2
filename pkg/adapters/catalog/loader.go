// Package catalog loads the stage catalog from YAML. Stage edits happen
// out-of-band; the loader is read-only from the core's perspective.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/veloir/stagehand/pkg/domain"
)

// document is the on-disk layout of a catalog file.
type document struct {
	Entry  string         `yaml:"entry"`
	Stages []domain.Stage `yaml:"stages"`
}

// FileLoader implements ports.CatalogLoader over a single YAML file.
type FileLoader struct {
	path string
}

// NewFileLoader creates a loader for the given catalog file.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// LoadCatalog reads and parses the catalog file.
func (l *FileLoader) LoadCatalog(ctx context.Context) (domain.Catalog, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("failed to read catalog %s: %w", l.path, err)
	}
	return Parse(data)
}

// Parse decodes catalog YAML.
func Parse(data []byte) (domain.Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return domain.Catalog{}, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if doc.Entry == "" {
		return domain.Catalog{}, fmt.Errorf("catalog missing entry stage")
	}

	catalog := domain.Catalog{
		EntryStageID: doc.Entry,
		Stages:       make(map[string]domain.Stage, len(doc.Stages)),
	}
	for _, stage := range doc.Stages {
		if stage.ID == "" {
			return domain.Catalog{}, fmt.Errorf("catalog contains a stage without an id")
		}
		if _, dup := catalog.Stages[stage.ID]; dup {
			return domain.Catalog{}, fmt.Errorf("duplicate stage id %q", stage.ID)
		}
		catalog.Stages[stage.ID] = stage
	}
	return catalog, nil
}

// Watch signals on the returned channel whenever the catalog file
// changes, implementing ports.Watchable for hot reload. The parent
// directory is watched so editors that save via rename are caught too.
// The channel closes when ctx is cancelled.
func (l *FileLoader) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start catalog watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch catalog %s: %w", l.path, err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(l.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return ch, nil
}

// StaticLoader implements ports.CatalogLoader over an in-memory catalog,
// useful for tests and embedded wiring.
type StaticLoader struct {
	catalog domain.Catalog
}

// NewStaticLoader wraps an already constructed catalog.
func NewStaticLoader(catalog domain.Catalog) *StaticLoader {
	return &StaticLoader{catalog: catalog}
}

// LoadCatalog returns the wrapped catalog.
func (l *StaticLoader) LoadCatalog(ctx context.Context) (domain.Catalog, error) {
	return l.catalog, nil
}
