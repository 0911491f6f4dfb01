// Package builtin wires the bundled adapters into a registry.
package builtin

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/notaspider/comick-source-api/internal/retrieval"
	"github.com/notaspider/comick-source-api/internal/scraper"
	"github.com/notaspider/comick-source-api/internal/sources"
	"github.com/notaspider/comick-source-api/internal/sources/asurascan"
	"github.com/notaspider/comick-source-api/internal/sources/atsumoe"
	"github.com/notaspider/comick-source-api/internal/sources/madarascans"
	"github.com/notaspider/comick-source-api/internal/sources/mangakatana"
	"github.com/notaspider/comick-source-api/internal/sources/novelcool"
)

// Override adjusts one bundled adapter.
type Override struct {
	Disabled bool
	Strategy retrieval.Strategy
	BaseURL  string
}

type constructor func(*retrieval.Client, ...sources.Option) scraper.Adapter

// catalog lists the bundled adapters in registration order.
var catalog = []struct {
	id  string
	new constructor
}{
	{"asurascan", func(c *retrieval.Client, o ...sources.Option) scraper.Adapter { return asurascan.New(c, o...) }},
	{"mangakatana", func(c *retrieval.Client, o ...sources.Option) scraper.Adapter { return mangakatana.New(c, o...) }},
	{"madarascans", func(c *retrieval.Client, o ...sources.Option) scraper.Adapter { return madarascans.New(c, o...) }},
	{"novelcool", func(c *retrieval.Client, o ...sources.Option) scraper.Adapter { return novelcool.New(c, o...) }},
	{"atsumoe", func(c *retrieval.Client, o ...sources.Option) scraper.Adapter { return atsumoe.New(c, o...) }},
}

// IDs returns the source ids of every bundled adapter.
func IDs() []string {
	ids := make([]string, 0, len(catalog))
	for _, entry := range catalog {
		ids = append(ids, entry.id)
	}
	return ids
}

// Register builds every enabled adapter over client and adds it to reg.
// Overrides are keyed by source id; an override for an unknown id is an
// error so configuration typos surface at startup.
func Register(reg *scraper.Registry, client *retrieval.Client, overrides map[string]Override, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	known := make(map[string]bool, len(catalog))
	for _, entry := range catalog {
		known[entry.id] = true
	}
	var unknown []string
	for id := range overrides {
		if !known[id] {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown source overrides: %v", unknown)
	}

	for _, entry := range catalog {
		o := overrides[entry.id]
		if o.Disabled {
			logger.Info("source disabled", zap.String("source", entry.id))
			continue
		}
		opts := []sources.Option{
			sources.WithLogger(logger),
			sources.WithBaseURL(o.BaseURL),
			sources.WithStrategy(o.Strategy),
		}
		adapter := entry.new(client, opts...)
		if err := reg.Register(adapter); err != nil {
			return fmt.Errorf("register %s: %w", entry.id, err)
		}
		logger.Debug("source registered",
			zap.String("source", entry.id),
			zap.String("base_url", adapter.BaseURL()),
		)
	}
	return nil
}
