// Package pairs loads the tracked asset-pair registry from *.yaml files in a
// directory. Each file declares one market. The registry is loaded once at
// startup and cached in memory — no hot reload.
package pairs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/closelab/ledgerstats/internal/core/stats"
	"github.com/closelab/ledgerstats/internal/ledger"
	"gopkg.in/yaml.v3"
)

// rawPair is the on-disk YAML shape.
type rawPair struct {
	Name    string `yaml:"name"`
	Base    string `yaml:"base"`
	Counter string `yaml:"counter"`
}

// Market is one tracked asset pair.
type Market struct {
	Name string
	Pair stats.Pair
}

// Registry holds the tracked markets. An empty registry tracks everything:
// the query layer only restricts pairs when markets are configured.
type Registry struct {
	dir     string
	markets map[string]Market // keyed by Pair.String()
}

// NewFileSystemRegistry eagerly loads all market files from dir. A missing
// directory is valid (zero markets configured).
func NewFileSystemRegistry(dir string) (*Registry, error) {
	r := &Registry{dir: dir, markets: make(map[string]Market)}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) load() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("market dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("market path %q is not a directory", r.dir)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("reading market dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || (!strings.HasSuffix(e.Name(), ".yaml") && !strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}

		path := filepath.Join(r.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading market file %s: %w", path, err)
		}

		var raw rawPair
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("parsing market file %s: %w", path, err)
		}

		base, err := ledger.ParseAsset(raw.Base)
		if err != nil {
			return fmt.Errorf("market file %s: base: %w", path, err)
		}
		counter, err := ledger.ParseAsset(raw.Counter)
		if err != nil {
			return fmt.Errorf("market file %s: counter: %w", path, err)
		}
		if base == counter {
			return fmt.Errorf("market file %s: base and counter are the same asset", path)
		}

		m := Market{Name: raw.Name, Pair: stats.Pair{Base: base, Counter: counter}}
		if m.Name == "" {
			m.Name = m.Pair.String()
		}
		if _, dup := r.markets[m.Pair.String()]; dup {
			return fmt.Errorf("market file %s: duplicate pair %s", path, m.Pair)
		}

		// Track both orientations: trades are stored double-entry.
		r.markets[m.Pair.String()] = m
		inv := Market{Name: m.Name, Pair: m.Pair.Invert()}
		r.markets[inv.Pair.String()] = inv
	}
	return nil
}

// Allowed reports whether queries for the pair are served. An unconfigured
// registry allows everything.
func (r *Registry) Allowed(p stats.Pair) bool {
	if len(r.markets) == 0 {
		return true
	}
	_, ok := r.markets[p.String()]
	return ok
}

// List returns all configured markets, both orientations included.
func (r *Registry) List() []Market {
	out := make([]Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m)
	}
	return out
}

// Len reports the number of tracked orientations.
func (r *Registry) Len() int {
	return len(r.markets)
}
