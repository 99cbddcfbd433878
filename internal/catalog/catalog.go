// Package catalog holds the immutable list of coin packs offered in the shop.
package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/narvelay/daily-tasks-bot/internal/domain"
	"github.com/narvelay/daily-tasks-bot/pkg/config"
)

// Catalog is a read-only, ordered set of packs keyed by id. Safe for concurrent use.
type Catalog struct {
	packs []domain.Pack
	byID  map[string]domain.Pack
	asset string
}

// New validates packs and builds a catalog priced in asset.
func New(asset string, packs []domain.Pack) (*Catalog, error) {
	if asset == "" {
		return nil, fmt.Errorf("catalog: asset is required")
	}
	if len(packs) == 0 {
		return nil, fmt.Errorf("catalog: at least one pack is required")
	}

	c := &Catalog{
		packs: make([]domain.Pack, 0, len(packs)),
		byID:  make(map[string]domain.Pack, len(packs)),
		asset: asset,
	}
	for _, p := range packs {
		switch {
		case p.ID == "":
			return nil, fmt.Errorf("catalog: pack id is empty")
		case p.Coins <= 0:
			return nil, fmt.Errorf("catalog: pack %q must grant a positive number of coins", p.ID)
		case !p.Price.IsPositive():
			return nil, fmt.Errorf("catalog: pack %q must have a positive price", p.ID)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate pack id %q", p.ID)
		}
		c.byID[p.ID] = p
		c.packs = append(c.packs, p)
	}

	return c, nil
}

// FromConfig builds the catalog from the packs section of the configuration.
func FromConfig(cfg config.Config) (*Catalog, error) {
	packs := make([]domain.Pack, 0, len(cfg.Packs))
	for _, p := range cfg.Packs {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("catalog: pack %q price %q: %w", p.ID, p.Price, err)
		}
		packs = append(packs, domain.Pack{ID: p.ID, Name: p.Name, Coins: p.Coins, Price: price})
	}
	return New(cfg.CryptoPay.Asset, packs)
}

// Lookup returns the pack with the given id.
func (c *Catalog) Lookup(id string) (domain.Pack, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// List returns the packs in configuration order.
func (c *Catalog) List() []domain.Pack {
	out := make([]domain.Pack, len(c.packs))
	copy(out, c.packs)
	return out
}

// Asset is the currency every price is denominated in.
func (c *Catalog) Asset() string {
	return c.asset
}
