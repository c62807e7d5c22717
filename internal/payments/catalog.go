// Package payments sells credits through Dodo Payments: it creates hosted
// checkout sessions, verifies webhook deliveries, and applies completed
// purchases to the credit ledger.
package payments

import (
	"errors"
	"fmt"
)

// Product identifiers known to the catalog.
const (
	ProductSingle = "p_single"
	ProductBatch  = "p_batch"
	ProductExport = "p_pdf_export"
)

var ErrUnknownProduct = errors.New("unknown product")

// Product is what a purchase grants.
type Product struct {
	ID      string
	Credits int
	// UnlocksTaggedExport flips the export flag on the analysis id carried in
	// the checkout metadata.
	UnlocksTaggedExport bool
}

// Catalog maps product ids to grants. The batch product also unlocks export
// on every later analysis; that check reads the ledger, not the catalog.
type Catalog struct {
	products  map[string]Product
	defaultID string
}

// NewCatalog builds the catalog. defaultProduct is sold when a checkout names
// no product; when it is not one of the built-in ids it grants one credit.
func NewCatalog(defaultProduct string, batchCredits int) *Catalog {
	c := &Catalog{
		products: map[string]Product{
			ProductSingle: {ID: ProductSingle, Credits: 1},
			ProductBatch:  {ID: ProductBatch, Credits: batchCredits},
			ProductExport: {ID: ProductExport, Credits: 0, UnlocksTaggedExport: true},
		},
		defaultID: defaultProduct,
	}
	if defaultProduct == "" {
		c.defaultID = ProductSingle
	}
	if _, ok := c.products[c.defaultID]; !ok {
		c.products[c.defaultID] = Product{ID: c.defaultID, Credits: 1}
	}
	return c
}

// Resolve returns the product for id, or the default product for "".
func (c *Catalog) Resolve(id string) (Product, error) {
	if id == "" {
		id = c.defaultID
	}
	p, ok := c.products[id]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrUnknownProduct, id)
	}
	return p, nil
}
