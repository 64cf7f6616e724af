package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-json"

	"github.com/pibench/pibench/server/internal/metrics"
)

// AlgorithmMetadata is one entry of the JSON metadata sidecar.
type AlgorithmMetadata struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Formula         string `json:"formula"`
	Description     string `json:"description"`
	DeepExplanation string `json:"deepExplanation"`
	Convergence     string `json:"convergence"`
	Applications    string `json:"applications"`
	Complexity      string `json:"complexity"`
}

// Lookup is the result of a metadata lookup: either the matched entry or a
// human-readable message naming the available ids.
type Lookup struct {
	Algorithm *AlgorithmMetadata
	Message   string
}

// Found reports whether the lookup matched an entry.
func (l Lookup) Found() bool { return l.Algorithm != nil }

// Catalog holds the algorithm metadata loaded from the sidecar file.
type Catalog struct {
	mu         sync.RWMutex
	path       string
	algorithms []AlgorithmMetadata
}

// LoadCatalog reads and parses the sidecar at path.
func LoadCatalog(path string) (*Catalog, error) {
	algos, err := readCatalog(path)
	if err != nil {
		return nil, err
	}
	return &Catalog{path: path, algorithms: algos}, nil
}

func readCatalog(path string) ([]AlgorithmMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %q: %w", path, err)
	}
	var algos []AlgorithmMetadata
	if err := json.Unmarshal(data, &algos); err != nil {
		return nil, fmt.Errorf("catalog: parse %q: %w", path, err)
	}
	for i, a := range algos {
		if a.ID == "" {
			return nil, fmt.Errorf("catalog: entry %d has no id", i)
		}
	}
	return algos, nil
}

// Reload re-reads the sidecar. On failure the current entries are kept.
func (c *Catalog) Reload() error {
	algos, err := readCatalog(c.path)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.algorithms = algos
	c.mu.Unlock()
	return nil
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.algorithms)
}

// IDs returns every id in file order.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ids(c.algorithms)
}

// Lookup matches id against entry ids, then entry names, ignoring case. The
// first match wins.
func (c *Catalog) Lookup(id string) Lookup {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lookup(c.algorithms, id)
}

// LookupAll returns one Lookup per id, in input order, against a single
// snapshot of the catalog.
func (c *Catalog) LookupAll(idList []string) []Lookup {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Lookup, len(idList))
	for i, id := range idList {
		out[i] = lookup(c.algorithms, id)
	}
	return out
}

func lookup(algos []AlgorithmMetadata, id string) Lookup {
	for i := range algos {
		if strings.EqualFold(algos[i].ID, id) {
			a := algos[i]
			return Lookup{Algorithm: &a}
		}
	}
	for i := range algos {
		if strings.EqualFold(algos[i].Name, id) {
			a := algos[i]
			return Lookup{Algorithm: &a}
		}
	}
	return Lookup{Message: fmt.Sprintf("Algorithm '%s' not found. Available: [%s]",
		id, strings.Join(ids(algos), ", "))}
}

func ids(algos []AlgorithmMetadata) []string {
	out := make([]string, len(algos))
	for i, a := range algos {
		out[i] = a.ID
	}
	return out
}

// Watch reloads the catalog whenever its file is written or recreated. It
// runs until ctx is cancelled. A failed reload is logged and the previous
// entries stay active.
func (c *Catalog) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: watch: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.path); err != nil {
		return fmt.Errorf("catalog: watch %q: %w", c.path, err)
	}

	slog.Info("catalog: watching for changes", "path", c.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic saves show up as Create after a rename.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if err := c.Reload(); err != nil {
				metrics.RecordStoreOperation("reload_catalog", "error")
				slog.Error("catalog: reload failed, keeping previous entries",
					"path", c.path, "err", err)
				continue
			}
			metrics.RecordStoreOperation("reload_catalog", "ok")
			slog.Info("catalog: reloaded", "path", c.path, "algorithms", c.Len())

			_ = watcher.Add(c.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("catalog: watcher error", "err", err)
		}
	}
}
