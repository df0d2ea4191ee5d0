package registry

import (
	"fmt"
	"sort"

	berr "github.com/next-trace/scg-cmdr/contract/errors"
)

// Catalog maps fully-qualified source names to sources. Process configuration
// selects which of them are registered, and in which order.
type Catalog struct {
	sources map[string]Source
}

// NewCatalog builds a catalog keyed by each source's Name.
func NewCatalog(sources ...Source) (*Catalog, error) {
	c := &Catalog{sources: make(map[string]Source, len(sources))}
	for _, s := range sources {
		if err := c.Add(s); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Add inserts src. Names must be unique and non-empty.
func (c *Catalog) Add(src Source) error {
	if src == nil || src.Name() == "" {
		return fmt.Errorf("catalog add: unnamed source: %w", berr.ErrInvalidSource)
	}

	if _, exists := c.sources[src.Name()]; exists {
		return fmt.Errorf("catalog add %s: name already used: %w", src.Name(), berr.ErrInvalidSource)
	}

	c.sources[src.Name()] = src

	return nil
}

// Names returns the known source names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.sources))
	for n := range c.sources {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

// RegisterAll registers the named sources into r in the given order and
// stops at the first failure.
func (c *Catalog) RegisterAll(r *Registry, names []string) error {
	for _, n := range names {
		src, ok := c.sources[n]
		if !ok {
			return fmt.Errorf("register %s: unknown handler source: %w", n, berr.ErrInvalidSource)
		}

		if err := r.Register(src); err != nil {
			return err
		}
	}

	return nil
}
