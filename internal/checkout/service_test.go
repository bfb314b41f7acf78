package checkout_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movilpos/internal/api"
	"movilpos/internal/catalog"
	"movilpos/internal/checkout"
	"movilpos/internal/sale"
	"movilpos/internal/session"
	"movilpos/internal/shift"
	"movilpos/internal/stubapi"
)

type testEnv struct {
	stub  *stubapi.Server
	srv   *httptest.Server
	cat   *catalog.Service
	guard *shift.Guard
	svc   *checkout.Service
}

// newTestEnv boots the stub backend behind httptest and logs the fixture
// cashier in. The receipt dispatcher stays nil — no Redis in unit tests.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	stub := stubapi.New(stubapi.DefaultOptions())
	srv := httptest.NewServer(stub.Engine())
	t.Cleanup(srv.Close)

	client := api.NewClient(srv.URL, "10.0.0.5", 5*time.Second, session.NewMemoryStore())
	_, err := client.Login(context.Background(), "cajero", "secret")
	require.NoError(t, err)

	cat := catalog.NewService(client)
	guard := shift.NewGuard(client)
	return &testEnv{
		stub:  stub,
		srv:   srv,
		cat:   cat,
		guard: guard,
		svc:   checkout.NewService(client, guard, cat, nil, "Tienda Demo"),
	}
}

func (e *testEnv) openShift(t *testing.T) *shift.Shift {
	t.Helper()
	sh, err := e.guard.Open(context.Background(), "reg-1", decimal.NewFromInt(50000))
	require.NoError(t, err)
	return sh
}

func (e *testEnv) loadedDraft(t *testing.T) *sale.Draft {
	t.Helper()
	ctx := context.Background()
	d := sale.NewDraft()
	for _, id := range []string{"p-1", "p-3"} {
		p, err := e.cat.GetProduct(ctx, id)
		require.NoError(t, err)
		d.AddItem(*p, 2)
	}
	// 2×3500 + 2×2800
	require.True(t, d.Subtotal().Equal(decimal.NewFromInt(12600)))
	return d
}

func TestSubmitCash(t *testing.T) {
	env := newTestEnv(t)
	sh := env.openShift(t)
	d := env.loadedDraft(t)

	completed, err := env.svc.Submit(context.Background(), d, checkout.PaymentInput{
		Method:         checkout.PaymentCash,
		AmountReceived: decimal.NewFromInt(20000),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, completed.InvoiceNumber)
	assert.True(t, completed.Total.Equal(decimal.NewFromInt(14994)), "total: %s", completed.Total)
	assert.True(t, completed.Change.Equal(decimal.NewFromInt(5006)), "change: %s", completed.Change)

	// Success clears the cart and resets the sale metadata.
	assert.Zero(t, d.Len())
	name, _ := d.Customer()
	assert.Equal(t, sale.DefaultCustomerName, name)

	sales := env.stub.Sales()
	require.Len(t, sales, 1)
	assert.Equal(t, sh.ID, sales[0].ShiftID)
	assert.Equal(t, sh.WarehouseID, sales[0].WarehouseID)
	assert.Equal(t, "reg-1", sales[0].CashRegisterID)
	assert.Len(t, sales[0].Items, 2)
}

func TestSubmitTransferSettlesExactly(t *testing.T) {
	env := newTestEnv(t)
	env.openShift(t)
	d := env.loadedDraft(t)

	completed, err := env.svc.Submit(context.Background(), d, checkout.PaymentInput{
		Method: checkout.PaymentTransfer,
	})
	require.NoError(t, err)
	assert.True(t, completed.AmountReceived.Equal(completed.Total))
	assert.True(t, completed.Change.IsZero())
}

func TestSubmitWithCouponDiscount(t *testing.T) {
	env := newTestEnv(t)
	env.openShift(t)
	ctx := context.Background()

	cp, err := env.cat.ValidateCoupon(ctx, "PROMO10")
	require.NoError(t, err)

	d := env.loadedDraft(t)
	d.SetDiscount(cp.Percentage, cp.ID, cp.Code)

	// 12600 − 10% = 11340; +19% IVA = 13494.6
	completed, err := env.svc.Submit(ctx, d, checkout.PaymentInput{Method: checkout.PaymentTransfer})
	require.NoError(t, err)
	assert.True(t, completed.Total.Equal(decimal.NewFromFloat(13494.6)), "total: %s", completed.Total)

	sales := env.stub.Sales()
	require.Len(t, sales, 1)
	assert.Equal(t, "cp-1", sales[0].CouponID)
}

func TestSubmitEmptyCart(t *testing.T) {
	env := newTestEnv(t)
	env.openShift(t)

	_, err := env.svc.Submit(context.Background(), sale.NewDraft(), checkout.PaymentInput{
		Method: checkout.PaymentCash, AmountReceived: decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, checkout.ErrEmptyCart)
}

func TestSubmitRequiresOpenShift(t *testing.T) {
	env := newTestEnv(t)
	d := env.loadedDraft(t)

	_, err := env.svc.Submit(context.Background(), d, checkout.PaymentInput{
		Method: checkout.PaymentTransfer,
	})
	assert.ErrorIs(t, err, shift.ErrNoOpenShift)
	assert.Equal(t, 2, d.Len(), "a blocked submit must not touch the draft")
	assert.Empty(t, env.stub.Sales())
}

func TestSubmitShiftClosedConcurrently(t *testing.T) {
	env := newTestEnv(t)
	env.openShift(t)
	d := env.loadedDraft(t)

	// Another device closes the shift between cart building and payment.
	env.stub.CloseActiveShift("u-1")

	_, err := env.svc.Submit(context.Background(), d, checkout.PaymentInput{
		Method: checkout.PaymentTransfer,
	})
	assert.ErrorIs(t, err, shift.ErrNoOpenShift)
	assert.Equal(t, 2, d.Len())
}

func TestSubmitInsufficientCashNeverHitsBackend(t *testing.T) {
	env := newTestEnv(t)
	env.openShift(t)
	d := env.loadedDraft(t)

	_, err := env.svc.Submit(context.Background(), d, checkout.PaymentInput{
		Method:         checkout.PaymentCash,
		AmountReceived: decimal.NewFromInt(1000),
	})
	assert.ErrorIs(t, err, checkout.ErrInsufficientCash)
	assert.Equal(t, 2, d.Len())
	assert.Empty(t, env.stub.Sales())
}

func TestSubmitPaymentValidatedBeforeShiftCheck(t *testing.T) {
	env := newTestEnv(t)
	d := env.loadedDraft(t)

	// No open shift, short cash: the payment error must win, proving no
	// network traffic happens before payment validation.
	_, err := env.svc.Submit(context.Background(), d, checkout.PaymentInput{
		Method:         checkout.PaymentCash,
		AmountReceived: decimal.NewFromInt(1000),
	})
	assert.ErrorIs(t, err, checkout.ErrInsufficientCash)
	assert.Equal(t, 2, d.Len())
}

func TestPauseAndResume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	d := env.loadedDraft(t)
	d.SetCustomer("Maria Lopez", "c-1")
	d.SetSaleName("mesa 4")
	d.SetDiscount(decimal.NewFromInt(10), "cp-1", "PROMO10")

	parkedID, err := env.svc.Pause(ctx, d)
	require.NoError(t, err)
	require.NotEmpty(t, parkedID)
	assert.Zero(t, d.Len(), "pause must clear the draft")
	assert.Equal(t, 1, env.stub.ParkedCount())

	res, err := env.svc.Resume(ctx, d, parkedID)
	require.NoError(t, err)
	assert.Zero(t, res.Placeholders)
	assert.True(t, res.Deleted)
	assert.Zero(t, env.stub.ParkedCount(), "resumed order must be deleted server-side")

	assert.Equal(t, 2, d.Len())
	assert.True(t, d.Subtotal().Equal(decimal.NewFromInt(12600)))
	name, id := d.Customer()
	assert.Equal(t, "Maria Lopez", name)
	assert.Equal(t, "c-1", id)
	assert.Equal(t, "mesa 4", d.SaleName())
	pct, _, code := d.Discount()
	assert.True(t, pct.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "PROMO10", code)
}

func TestResumeMissingProductUsesPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	d := env.loadedDraft(t)
	parkedID, err := env.svc.Pause(ctx, d)
	require.NoError(t, err)

	// The product disappears from the catalog while the order is parked.
	env.stub.RemoveProduct("p-3")

	res, err := env.svc.Resume(ctx, d, parkedID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Placeholders)
	assert.True(t, res.Deleted)

	items := d.Items()
	require.Len(t, items, 2)
	// The parked price snapshot survives the missing product.
	assert.Equal(t, "p-3", items[1].ProductID)
	assert.Equal(t, "Papas 45g", items[1].ProductName)
	assert.True(t, items[1].UnitPrice.Equal(decimal.NewFromInt(2800)))
}

func TestResumeAbortsOnBackendFailure(t *testing.T) {
	// A parked order whose product lookup fails with a server error, not a
	// 404: the reload must abort and leave the parked order undeleted.
	parked := checkout.ParkedOrder{
		ID:           "ord-1",
		CustomerID:   "c-1",
		CustomerName: "Maria Lopez",
		Items: []checkout.ParkedItem{
			{ProductID: "p-1", ProductName: "Gaseosa 400ml", Quantity: 1, UnitPrice: decimal.NewFromInt(3500)},
		},
	}

	var deleted bool
	mux := http.NewServeMux()
	mux.HandleFunc("/orders/ord-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			deleted = true
			w.WriteHeader(http.StatusNoContent)
			return
		}
		json.NewEncoder(w).Encode(parked)
	})
	mux.HandleFunc("/products/p-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"detail":"error interno"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := api.NewClient(srv.URL, "10.0.0.5", 5*time.Second, session.NewMemoryStore())
	cat := catalog.NewService(client)
	svc := checkout.NewService(client, shift.NewGuard(client), cat, nil, "Tienda Demo")

	d := sale.NewDraft()
	_, err := svc.Resume(context.Background(), d, "ord-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, api.ErrNotFound)
	assert.False(t, deleted, "an aborted reload must not delete the parked order")
}

func TestResumeUnknownOrder(t *testing.T) {
	env := newTestEnv(t)
	d := sale.NewDraft()

	_, err := env.svc.Resume(context.Background(), d, "no-existe")
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestPauseEmptyCart(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Pause(context.Background(), sale.NewDraft())
	assert.ErrorIs(t, err, checkout.ErrEmptyCart)
}
