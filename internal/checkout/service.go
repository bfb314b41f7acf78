// Package checkout turns a populated sale draft, an open shift and payment
// input into a submitted sale, and runs the parallel pause/resume path for
// parked orders.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"movilpos/internal/api"
	"movilpos/internal/catalog"
	"movilpos/internal/receipt"
	"movilpos/internal/sale"
	"movilpos/internal/shift"
	"movilpos/internal/worker"
)

var ErrEmptyCart = errors.New("checkout: cart is empty")

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, max=100 work without panicking.
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// ── Wire shapes ──────────────────────────────────────────────────────────────

type SaleItemRequest struct {
	ProductID    string          `json:"product_id"    validate:"required"`
	Quantity     int             `json:"quantity"      validate:"required,min=1"`
	UnitPrice    decimal.Decimal `json:"unit_price"    validate:"min=0"`
	LineDiscount decimal.Decimal `json:"line_discount" validate:"min=0"`
	TaxRate      int             `json:"tax_rate"`
}

// SaleRequest is the POST /pos/sales payload. Warehouse and register ids come
// from the active shift, never re-selected by the user.
type SaleRequest struct {
	CustomerID     string            `json:"customer_id"         validate:"required"`
	CustomerName   string            `json:"customer_name"       validate:"required"`
	OrderType      string            `json:"order_type,omitempty"`
	SaleName       string            `json:"sale_name,omitempty"`
	PaymentMethod  string            `json:"payment_method"      validate:"required,oneof=cash transfer"`
	CouponID       string            `json:"coupon_id,omitempty"`
	DiscountPct    decimal.Decimal   `json:"discount_percentage" validate:"min=0,max=100"`
	ShiftID        string            `json:"shift_id"            validate:"required"`
	WarehouseID    string            `json:"warehouse_id"        validate:"required"`
	CashRegisterID string            `json:"cash_register_id"    validate:"required"`
	Subtotal       decimal.Decimal   `json:"subtotal"`
	Total          decimal.Decimal   `json:"total"`
	AmountReceived decimal.Decimal   `json:"amount_received"`
	Change         decimal.Decimal   `json:"change"`
	Items          []SaleItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CompletedSale is the transient server echo shown on the success screen,
// then discarded.
type CompletedSale struct {
	ID             string          `json:"id"`
	InvoiceNumber  string          `json:"invoice_number"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  string          `json:"payment_method"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	Change         decimal.Decimal `json:"change"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PaymentInput is what the cashier enters on the payment modal.
type PaymentInput struct {
	Method         string
	AmountReceived decimal.Decimal // cash only; ignored for transfer
	CustomerEmail  string          // optional — emails the PDF receipt
}

// ── Service ──────────────────────────────────────────────────────────────────

type Service struct {
	api          *api.Client
	guard        *shift.Guard
	catalog      *catalog.Service
	dispatcher   *worker.Dispatcher // nil = receipt pipeline disabled
	businessName string
}

func NewService(c *api.Client, guard *shift.Guard, cat *catalog.Service, dispatcher *worker.Dispatcher, businessName string) *Service {
	return &Service{
		api:          c,
		guard:        guard,
		catalog:      cat,
		dispatcher:   dispatcher,
		businessName: businessName,
	}
}

// Submit finalizes the draft. The shift is re-validated immediately before
// submission — it can be closed concurrently from another device — and
// shift.ErrNoOpenShift aborts. On success the draft is cleared and reset;
// on any failure it is left untouched so the cashier can retry.
func (s *Service) Submit(ctx context.Context, d *sale.Draft, pay PaymentInput) (*CompletedSale, error) {
	items := d.Items()
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	discountPct, couponID, _ := d.Discount()
	totals := ComputeTotals(d.Subtotal(), discountPct)

	// Payment is validated before any network traffic; a short cash amount
	// never costs a round trip.
	payment, err := ResolvePayment(pay.Method, pay.AmountReceived, totals.Total)
	if err != nil {
		return nil, err
	}

	// Re-check the shift immediately before submission — it can be closed
	// concurrently from another device.
	active, err := s.guard.Active(ctx)
	if err != nil {
		return nil, err
	}

	customerName, customerID := d.Customer()
	req := SaleRequest{
		CustomerID:     customerID,
		CustomerName:   customerName,
		OrderType:      d.OrderType(),
		SaleName:       d.SaleName(),
		PaymentMethod:  payment.Method,
		CouponID:       couponID,
		DiscountPct:    discountPct,
		ShiftID:        active.ID,
		WarehouseID:    active.WarehouseID,
		CashRegisterID: active.CashRegisterID,
		Subtotal:       totals.Subtotal,
		Total:          totals.Total,
		AmountReceived: payment.AmountReceived,
		Change:         payment.Change,
	}
	for _, li := range items {
		req.Items = append(req.Items, SaleItemRequest{
			ProductID:    li.ProductID,
			Quantity:     li.Quantity,
			UnitPrice:    li.UnitPrice,
			LineDiscount: li.LineDiscount,
			TaxRate:      TaxRatePercent,
		})
	}
	// Client-side validation — malformed payloads never reach the network.
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("checkout: invalid sale payload: %w", err)
	}

	var completed CompletedSale
	if err := s.api.Post(ctx, "/pos/sales", req, &completed); err != nil {
		return nil, err
	}

	// Receipt snapshot must be taken before the draft is cleared.
	rcpt := s.buildReceipt(items, customerName, totals, payment, &completed)

	d.ClearCart()
	d.ResetSaleData()

	if s.dispatcher != nil {
		job := worker.ReceiptJobPayload{Receipt: rcpt, CustomerEmail: pay.CustomerEmail}
		if err := s.dispatcher.EnqueueReceipt(ctx, job); err != nil {
			// Best effort — the sale is already recorded server-side.
			log.Warn().Err(err).Str("invoice", completed.InvoiceNumber).Msg("checkout: failed to enqueue receipt job")
		}
	}

	return &completed, nil
}

func (s *Service) buildReceipt(items []sale.LineItem, customerName string, totals Totals, payment Payment, completed *CompletedSale) receipt.Receipt {
	rcpt := receipt.Receipt{
		Business:       s.businessName,
		InvoiceNumber:  completed.InvoiceNumber,
		CustomerName:   customerName,
		Subtotal:       totals.Subtotal,
		DiscountAmount: totals.DiscountAmount,
		Tax:            totals.Tax,
		Total:          totals.Total,
		PaymentMethod:  payment.Method,
		AmountReceived: payment.AmountReceived,
		Change:         payment.Change,
		CreatedAt:      completed.CreatedAt,
	}
	if rcpt.CreatedAt.IsZero() {
		rcpt.CreatedAt = time.Now()
	}
	for _, li := range items {
		rcpt.Lines = append(rcpt.Lines, receipt.Line{
			Name:     li.ProductName,
			Quantity: li.Quantity,
			Subtotal: li.Subtotal(),
		})
	}
	return rcpt
}

// ── Parked orders ────────────────────────────────────────────────────────────

type ParkedItem struct {
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	LineDiscount decimal.Decimal `json:"line_discount"`
}

// ParkedOrder is the draft serialized for later resumption.
type ParkedOrder struct {
	ID           string          `json:"id,omitempty"`
	CustomerID   string          `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	OrderType    string          `json:"order_type,omitempty"`
	SaleName     string          `json:"sale_name,omitempty"`
	CouponID     string          `json:"coupon_id,omitempty"`
	CouponCode   string          `json:"coupon_code,omitempty"`
	DiscountPct  decimal.Decimal `json:"discount_percentage"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Total        decimal.Decimal `json:"total"`
	Items        []ParkedItem    `json:"items"`
}

// Pause serializes the current draft to the parked-order endpoint and clears
// it. Lower commitment than a sale — no shift required.
func (s *Service) Pause(ctx context.Context, d *sale.Draft) (parkedID string, err error) {
	items := d.Items()
	if len(items) == 0 {
		return "", ErrEmptyCart
	}

	discountPct, couponID, couponCode := d.Discount()
	totals := ComputeTotals(d.Subtotal(), discountPct)
	customerName, customerID := d.Customer()

	order := ParkedOrder{
		CustomerID:   customerID,
		CustomerName: customerName,
		OrderType:    d.OrderType(),
		SaleName:     d.SaleName(),
		CouponID:     couponID,
		CouponCode:   couponCode,
		DiscountPct:  discountPct,
		Subtotal:     totals.Subtotal,
		Total:        totals.Total,
	}
	for _, li := range items {
		order.Items = append(order.Items, ParkedItem{
			ProductID:    li.ProductID,
			ProductName:  li.ProductName,
			Quantity:     li.Quantity,
			UnitPrice:    li.UnitPrice,
			LineDiscount: li.LineDiscount,
		})
	}

	var created ParkedOrder
	if err := s.api.Post(ctx, "/orders/pause", order, &created); err != nil {
		return "", err
	}

	d.ClearCart()
	d.ResetSaleData()
	return created.ID, nil
}

// ResumeResult reports how the reload went.
type ResumeResult struct {
	// Placeholders counts lines restored with a synthetic product because
	// the referenced product could no longer be fetched.
	Placeholders int
	// Deleted reports whether the parked order was removed server-side
	// after the successful reload.
	Deleted bool
}

// Resume reloads a parked order into the draft: clears the current draft,
// re-applies the sale metadata, re-adds every line (substituting a
// placeholder when the product is gone — the rest of the order still comes
// back), and deletes the parked order only after the reload succeeded.
func (s *Service) Resume(ctx context.Context, d *sale.Draft, orderID string) (*ResumeResult, error) {
	var order ParkedOrder
	if err := s.api.Get(ctx, "/orders/"+url.PathEscape(orderID), &order); err != nil {
		return nil, err
	}

	d.ClearCart()
	d.ResetSaleData()

	if order.CustomerID != "" {
		d.SetCustomer(order.CustomerName, order.CustomerID)
	}
	if order.OrderType != "" {
		d.SetOrderType(order.OrderType)
	}
	if order.SaleName != "" {
		d.SetSaleName(order.SaleName)
	}
	if !order.DiscountPct.IsZero() || order.CouponID != "" {
		d.SetDiscount(order.DiscountPct, order.CouponID, order.CouponCode)
	}

	res := &ResumeResult{}
	for _, it := range order.Items {
		p, err := s.catalog.GetProduct(ctx, it.ProductID)
		if err != nil {
			// Placeholder recovery is for a product that no longer exists.
			// A dead session or backend failure aborts the reload instead,
			// leaving the parked order intact for a retry.
			if !errors.Is(err, api.ErrNotFound) {
				return nil, err
			}
			res.Placeholders++
			name := it.ProductName
			if name == "" {
				name = "Producto no disponible"
			}
			p = &catalog.Product{ID: it.ProductID, Name: name, Price: it.UnitPrice, Stock: it.Quantity}
		}
		// The parked unit price is the snapshot being restored; the live
		// product only refreshes name and stock.
		d.AddItem(catalog.Product{
			ID:    it.ProductID,
			Name:  p.Name,
			Price: it.UnitPrice,
			Stock: p.Stock,
		}, it.Quantity)
		if !it.LineDiscount.IsZero() {
			d.SetLineDiscount(it.ProductID, it.LineDiscount)
		}
	}

	if err := s.api.Delete(ctx, "/orders/"+url.PathEscape(orderID)); err != nil {
		// Reload already succeeded; a stale parked order is the lesser evil.
		log.Warn().Err(err).Str("order_id", orderID).Msg("checkout: failed to delete parked order after reload")
	} else {
		res.Deleted = true
	}
	return res, nil
}
