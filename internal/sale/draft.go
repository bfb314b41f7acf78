// Package sale holds the in-progress sale: line items, customer, order type,
// discount. Pure in-memory state for one checkout session — nothing here
// touches the network, and nothing survives a process restart.
package sale

import (
	"sync"

	"github.com/shopspring/decimal"

	"movilpos/internal/catalog"
)

// Walk-in customer sentinel. Every fresh draft sells to this customer until
// one is chosen explicitly.
const (
	DefaultCustomerName = "Consumidor Final"
	DefaultCustomerID   = "consumidor-final"
)

// LineItem is one product entry in the draft. UnitPrice is snapshotted at
// add time — later catalog price changes do not move an open cart.
type LineItem struct {
	ProductID    string
	ProductName  string
	Quantity     int
	UnitPrice    decimal.Decimal
	LineDiscount decimal.Decimal
	// Stock is the cached figure used for the non-blocking stock warning.
	Stock int
}

// Subtotal is quantity × unit price − line discount.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity))).Sub(li.LineDiscount)
}

// Draft is the mutable sale-in-progress aggregate. At most one line item per
// product id; adding an already-present product increments its quantity.
//
// The mutex exists because debounced search and focus refreshes complete on
// other goroutines; the draft itself has no background writers.
type Draft struct {
	mu    sync.Mutex
	items []LineItem

	customerName string
	customerID   string
	orderType    string // "" = unset
	saleName     string // "" = unset

	discountPct decimal.Decimal // 0–100
	couponID    string
	couponCode  string
}

// NewDraft returns an empty draft selling to the walk-in customer.
func NewDraft() *Draft {
	return &Draft{
		customerName: DefaultCustomerName,
		customerID:   DefaultCustomerID,
	}
}

// AddItem inserts the product or, when already present, increments its
// quantity. Returns true when the resulting quantity exceeds the cached
// stock figure — a warning for the UI, never a block.
func (d *Draft) AddItem(p catalog.Product, qty int) (exceedsStock bool) {
	if qty < 1 {
		qty = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.items {
		if d.items[i].ProductID == p.ID {
			d.items[i].Quantity += qty
			d.items[i].Stock = p.Stock
			return d.items[i].Quantity > p.Stock
		}
	}
	d.items = append(d.items, LineItem{
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    qty,
		UnitPrice:   p.Price,
		Stock:       p.Stock,
	})
	return qty > p.Stock
}

// UpdateQuantity sets the quantity for a line. qty <= 0 removes the line.
// A quantity above the cached stock is NOT applied; applied=false tells the
// UI to surface the stock warning. Unknown product ids are a no-op.
func (d *Draft) UpdateQuantity(productID string, qty int) (applied bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if qty <= 0 {
		d.removeLocked(productID)
		return true
	}
	for i := range d.items {
		if d.items[i].ProductID == productID {
			if qty > d.items[i].Stock {
				return false
			}
			d.items[i].Quantity = qty
			return true
		}
	}
	return true
}

// SetLineDiscount sets the per-line discount amount. No-op if absent.
func (d *Draft) SetLineDiscount(productID string, discount decimal.Decimal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.items {
		if d.items[i].ProductID == productID {
			d.items[i].LineDiscount = discount
			return
		}
	}
}

// RemoveItem deletes the line. No-op if absent.
func (d *Draft) RemoveItem(productID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(productID)
}

func (d *Draft) removeLocked(productID string) {
	for i := range d.items {
		if d.items[i].ProductID == productID {
			d.items = append(d.items[:i], d.items[i+1:]...)
			return
		}
	}
}

// ClearCart empties the line items only. Customer, order type and discount
// survive — reloading a parked order clears items first and repopulates,
// while ResetSaleData handles the full reset.
func (d *Draft) ClearCart() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = nil
}

// ResetSaleData restores customer, order type, sale name and discount to
// their defaults. Line items are untouched.
func (d *Draft) ResetSaleData() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customerName = DefaultCustomerName
	d.customerID = DefaultCustomerID
	d.orderType = ""
	d.saleName = ""
	d.discountPct = decimal.Zero
	d.couponID = ""
	d.couponCode = ""
}

// SetDiscount sets the sale-level percentage and the coupon backing it as a
// unit. Percentages outside 0–100 are clamped.
func (d *Draft) SetDiscount(pct decimal.Decimal, couponID, couponCode string) {
	if pct.IsNegative() {
		pct = decimal.Zero
	}
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		pct = decimal.NewFromInt(100)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.discountPct = pct
	d.couponID = couponID
	d.couponCode = couponCode
}

// ClearDiscount removes the percentage and its coupon together.
func (d *Draft) ClearDiscount() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.discountPct = decimal.Zero
	d.couponID = ""
	d.couponCode = ""
}

func (d *Draft) SetCustomer(name, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.customerName = name
	d.customerID = id
}

func (d *Draft) SetOrderType(label string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orderType = label
}

func (d *Draft) SetSaleName(label string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.saleName = label
}

// ── Reads ────────────────────────────────────────────────────────────────────

// Items returns a copy of the line items in insertion order.
func (d *Draft) Items() []LineItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]LineItem, len(d.items))
	copy(out, d.items)
	return out
}

func (d *Draft) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

// TotalItems is the sum of quantities across all lines.
func (d *Draft) TotalItems() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, li := range d.items {
		n += li.Quantity
	}
	return n
}

// Subtotal is the sum of line subtotals — no tax, no sale-level discount.
func (d *Draft) Subtotal() decimal.Decimal {
	d.mu.Lock()
	defer d.mu.Unlock()
	sum := decimal.Zero
	for _, li := range d.items {
		sum = sum.Add(li.Subtotal())
	}
	return sum
}

func (d *Draft) Customer() (name, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.customerName, d.customerID
}

func (d *Draft) OrderType() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.orderType
}

func (d *Draft) SaleName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saleName
}

// Discount returns the sale-level percentage and its backing coupon.
func (d *Draft) Discount() (pct decimal.Decimal, couponID, couponCode string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.discountPct, d.couponID, d.couponCode
}
