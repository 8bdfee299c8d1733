package kits

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sunelia/solar-funnel/internal/pvgis"
	"github.com/sunelia/solar-funnel/pkg/logging"
)

// Fetcher retrieves raw kit definitions from the calculation backend.
type Fetcher interface {
	GetKits(ctx context.Context, region string) ([]pvgis.RawKit, error)
}

// Catalog caches the normalized kit list for the currently selected region.
// The first successful fetch per region is cached; switching region discards
// the previous catalog. A failed fetch leaves the cache empty, never partial.
type Catalog struct {
	fetcher Fetcher
	logger  *logging.Logger

	mu     sync.Mutex
	region string
	kits   []Kit
}

// NewCatalog creates a catalog backed by the given fetcher.
func NewCatalog(fetcher Fetcher, logger *logging.Logger) *Catalog {
	if logger == nil {
		logger = logging.Default()
	}
	return &Catalog{
		fetcher: fetcher,
		logger:  logger,
	}
}

// Kits returns the catalog for region, fetching at most once per region
// selection. The returned slice is sorted ascending by power and is a copy;
// callers may not mutate the cache through it.
func (c *Catalog) Kits(ctx context.Context, region string) ([]Kit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.region == region && c.kits != nil {
		return append([]Kit(nil), c.kits...), nil
	}

	raw, err := c.fetcher.GetKits(ctx, region)
	if err != nil {
		// Leave whatever was cached for the previous region untouched; the
		// caller surfaces the alert.
		return nil, fmt.Errorf("kits: fetch catalog for %s: %w", region, err)
	}

	normalized := make([]Kit, 0, len(raw))
	for _, r := range raw {
		normalized = append(normalized, ComputeEconomics(r))
	}
	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].Power < normalized[j].Power
	})

	c.region = region
	c.kits = normalized
	c.logger.Info("kit catalog loaded", "region", region, "count", len(normalized))

	return append([]Kit(nil), c.kits...), nil
}

// Invalidate drops the cached catalog; the next Kits call re-fetches.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.region = ""
	c.kits = nil
}

// Find returns the cached kit with the given power, if present.
func (c *Catalog) Find(power float64) (Kit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.kits {
		if k.Power == power {
			return k, true
		}
	}
	return Kit{}, false
}
