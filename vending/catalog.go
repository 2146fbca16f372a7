package vending

import "fmt"

// Catalog is an immutable product lookup
type Catalog struct {
	products map[int]Product
}

// NewCatalog validates the products and builds the lookup
func NewCatalog(products ...Product) (*Catalog, error) {
	c := &Catalog{products: make(map[int]Product, len(products))}
	for _, p := range products {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.products[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicated id %d", ErrInvalidProduct, p.ID)
		}
		c.products[p.ID] = p
	}
	return c, nil
}

// DefaultProducts is the stock assortment of the machine
func DefaultProducts() []Product {
	return []Product{
		{ID: 1, Name: "Coca Cola", Price: 100},
		{ID: 2, Name: "Pepsi", Price: 75},
		{ID: 3, Name: "Fanta", Price: 80},
		{ID: 4, Name: "Sprite", Price: 125},
		{ID: 5, Name: "Water", Price: 15},
	}
}

// Lookup returns the product registered under id
func (c *Catalog) Lookup(id int) (Product, error) {
	p, ok := c.products[id]
	if !ok {
		return Product{}, fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	return p, nil
}

// Products lists the catalog ordered by id
func (c *Catalog) Products() []Product {
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sortProducts(out)
	return out
}
