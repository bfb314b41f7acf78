package catalog

import "github.com/shopspring/decimal"

// Category groups products for the POS grid.
type Category struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Product is the catalog snapshot the terminal sells from. Stock is the
// last-known figure, refreshed on screen focus — the backend owns the truth.
type Product struct {
	ID          string          `json:"id"`
	Barcode     string          `json:"barcode"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	CategoryID  string          `json:"category_id"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Active      bool            `json:"active"`
}

// Customer as registered server-side. The walk-in default lives in the sale
// package, not here.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Tax is a catalog entry only. The checkout flow does NOT read it — it uses
// a fixed 19% rate, preserved from the system this terminal replaces.
type Tax struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Percentage decimal.Decimal `json:"percentage"`
}

type Warehouse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Coupon backs a sale-level discount percentage.
type Coupon struct {
	ID         string          `json:"id"`
	Code       string          `json:"code"`
	Percentage decimal.Decimal `json:"percentage"`
	Active     bool            `json:"active"`
}
