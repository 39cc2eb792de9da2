package tle

import "time"

// Elements is a validated orbital-element triple: an optional name and the
// two fixed-width element lines.
type Elements struct {
	Name          string
	CatalogNumber int
	Epoch         time.Time
	Line1         string
	Line2         string
}

// Catalog indexes element sets by catalog number.
type Catalog map[int]Elements

// NewCatalog builds a Catalog. Later entries for the same catalog number win.
func NewCatalog(entries []Elements) Catalog {
	c := make(Catalog, len(entries))
	for _, e := range entries {
		c[e.CatalogNumber] = e
	}
	return c
}
