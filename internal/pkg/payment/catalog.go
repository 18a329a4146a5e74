package payment

import (
	"fmt"
)

// Pack is a fixed (credits, price) bundle.
type Pack struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Credits int64  `json:"credits"`
	Price   Price  `json:"price"`
}

// Catalog is the set of purchasable packs.
type Catalog struct {
	packs map[string]Pack
	order []string
}

// DefaultCatalog returns the standard credit packs.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Pack{ID: "starter", Name: "Starter", Credits: 100, Price: Price{AmountMinor: 999, Currency: "USD"}},
		Pack{ID: "pro", Name: "Pro", Credits: 500, Price: Price{AmountMinor: 3999, Currency: "USD"}},
		Pack{ID: "enterprise", Name: "Enterprise", Credits: 1000, Price: Price{AmountMinor: 6999, Currency: "USD"}},
	)
}

// NewCatalog builds a catalog preserving the given order.
func NewCatalog(packs ...Pack) *Catalog {
	c := &Catalog{packs: make(map[string]Pack, len(packs))}
	for _, p := range packs {
		if _, dup := c.packs[p.ID]; !dup {
			c.order = append(c.order, p.ID)
		}
		c.packs[p.ID] = p
	}
	return c
}

// Get returns the pack or ErrInvalidPack.
func (c *Catalog) Get(id string) (Pack, error) {
	p, ok := c.packs[id]
	if !ok {
		return Pack{}, fmt.Errorf("%w: %q", ErrInvalidPack, id)
	}
	return p, nil
}

// List returns the packs in catalog order.
func (c *Catalog) List() []Pack {
	out := make([]Pack, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.packs[id])
	}
	return out
}

// IDs returns the pack ids.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}
