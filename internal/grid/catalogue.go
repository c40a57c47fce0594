package grid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hdsemg/hdsemg-select/internal/monitoring"
)

// maxCatalogueBytes caps catalogue files and downloads.
const maxCatalogueBytes = 1 * 1024 * 1024

// Product is one catalogue row: a grid model and its physical electrode count.
type Product struct {
	Product    string `json:"product" yaml:"product"`
	Electrodes int    `json:"electrodes" yaml:"electrodes"`
}

// Catalogue answers electrode-count lookups from an in-memory product list.
// A nil or empty Catalogue answers "unknown" for everything.
type Catalogue struct {
	mu     sync.RWMutex
	byName map[string]int
}

// NewCatalogue builds a catalogue. Product names are matched case-insensitively.
func NewCatalogue(products []Product) *Catalogue {
	c := &Catalogue{byName: make(map[string]int, len(products))}
	for _, p := range products {
		name := strings.ToUpper(strings.TrimSpace(p.Product))
		if name == "" || p.Electrodes <= 0 {
			continue
		}
		if _, dup := c.byName[name]; dup {
			// first entry wins, matching a linear scan
			continue
		}
		c.byName[name] = p.Electrodes
	}
	return c
}

// Len returns the number of known products.
func (c *Catalogue) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byName)
}

// Lookup implements ElectrodeCountLookup.
func (c *Catalogue) Lookup(product string) (int, bool) {
	if c == nil {
		return 0, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.byName[strings.ToUpper(strings.TrimSpace(product))]
	return n, ok
}

// Merge adds products from other that are not yet known.
func (c *Catalogue) Merge(other *Catalogue) {
	if c == nil || other == nil || c == other {
		return
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range other.byName {
		if _, ok := c.byName[k]; !ok {
			c.byName[k] = v
		}
	}
}

// ParseCatalogue decodes a product list. format is "json" or "yaml".
func ParseCatalogue(data []byte, format string) (*Catalogue, error) {
	var products []Product
	switch strings.ToLower(format) {
	case "json":
		if err := json.Unmarshal(data, &products); err != nil {
			return nil, fmt.Errorf("failed to parse catalogue JSON: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &products); err != nil {
			return nil, fmt.Errorf("failed to parse catalogue YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalogue format %q", format)
	}
	return NewCatalogue(products), nil
}

// LoadCatalogue reads a catalogue file; the format follows the extension
// (.json, .yaml or .yml).
func LoadCatalogue(path string) (*Catalogue, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(cleanPath)), ".")

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat catalogue file: %w", err)
	}
	if fileInfo.Size() > maxCatalogueBytes {
		return nil, fmt.Errorf("catalogue file too large: %d bytes (max %d)", fileInfo.Size(), maxCatalogueBytes)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue file: %w", err)
	}
	return ParseCatalogue(data, ext)
}

// FetchCatalogue downloads a JSON catalogue. The caller bounds the request
// with ctx; extraction itself only ever sees the resolved Catalogue.
func FetchCatalogue(ctx context.Context, client *http.Client, url string) (*Catalogue, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalogue request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalogue: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch catalogue: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogueBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue body: %w", err)
	}
	return ParseCatalogue(data, "json")
}

// ResolveCatalogue loads the catalogue from a file and/or URL. Failures are
// logged and yield whatever could be loaded, possibly an empty catalogue;
// lookups against it then fall back to rows*cols.
func ResolveCatalogue(ctx context.Context, path, url string) *Catalogue {
	cat := NewCatalogue(nil)
	if path != "" {
		c, err := LoadCatalogue(path)
		if err != nil {
			monitoring.Logf("grid: catalogue file unavailable: %v", err)
		} else {
			cat.Merge(c)
		}
	}
	if url != "" {
		c, err := FetchCatalogue(ctx, nil, url)
		if err != nil {
			monitoring.Logf("grid: catalogue download unavailable: %v", err)
		} else {
			cat.Merge(c)
		}
	}
	return cat
}
