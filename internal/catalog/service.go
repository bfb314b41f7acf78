// Package catalog provides thin typed accessors over the backend's catalog
// endpoints. No caching, no local truth — every call is a round trip.
package catalog

import (
	"context"
	"fmt"
	"net/url"

	"movilpos/internal/api"
)

type Service struct {
	api *api.Client
}

func NewService(c *api.Client) *Service { return &Service{api: c} }

// ── Categories ───────────────────────────────────────────────────────────────

func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	if err := s.api.Get(ctx, "/categories", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ── Products ─────────────────────────────────────────────────────────────────

// ProductFilter narrows GET /products. Zero value lists everything.
type ProductFilter struct {
	Search     string
	CategoryID string
}

func (s *Service) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.CategoryID != "" {
		q.Set("category_id", f.CategoryID)
	}
	path := "/products"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []Product
	if err := s.api.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchProducts is the debounced-search fetch: free text against name and
// barcode.
func (s *Service) SearchProducts(ctx context.Context, query string) ([]Product, error) {
	return s.ListProducts(ctx, ProductFilter{Search: query})
}

func (s *Service) GetProduct(ctx context.Context, id string) (*Product, error) {
	var out Product
	if err := s.api.Get(ctx, "/products/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) GetProductByBarcode(ctx context.Context, barcode string) (*Product, error) {
	var out Product
	if err := s.api.Get(ctx, "/products/barcode/"+url.PathEscape(barcode), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	var out Product
	if err := s.api.Post(ctx, "/products", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) UpdateProduct(ctx context.Context, p Product) (*Product, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("catalog: update product: missing id")
	}
	var out Product
	if err := s.api.Put(ctx, "/products/"+url.PathEscape(p.ID), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.api.Delete(ctx, "/products/"+url.PathEscape(id))
}

// ── Customers ────────────────────────────────────────────────────────────────

func (s *Service) ListCustomers(ctx context.Context, search string) ([]Customer, error) {
	path := "/customers"
	if search != "" {
		path += "?search=" + url.QueryEscape(search)
	}
	var out []Customer
	if err := s.api.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) CreateCustomer(ctx context.Context, c Customer) (*Customer, error) {
	var out Customer
	if err := s.api.Post(ctx, "/customers", c, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Taxes / Warehouses ───────────────────────────────────────────────────────

func (s *Service) ListTaxes(ctx context.Context) ([]Tax, error) {
	var out []Tax
	if err := s.api.Get(ctx, "/taxes", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	var out []Warehouse
	if err := s.api.Get(ctx, "/warehouses", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ── Coupons ──────────────────────────────────────────────────────────────────

// ValidateCoupon resolves a code to its discount. api.ErrNotFound means the
// code does not exist or is inactive.
func (s *Service) ValidateCoupon(ctx context.Context, code string) (*Coupon, error) {
	var out Coupon
	if err := s.api.Get(ctx, "/coupons/validate?code="+url.QueryEscape(code), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
