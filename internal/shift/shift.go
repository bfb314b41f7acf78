// Package shift gates checkout on an open cash-register shift. The backend
// owns shift state; the terminal only holds read-only snapshots fetched on
// demand, because a shift can be closed from another device at any moment.
package shift

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"movilpos/internal/api"
)

const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// ErrNoOpenShift is the guard's answer to a backend 404 on the active-shift
// endpoint. Checkout treats it as "blocked: offer to open one".
var ErrNoOpenShift = errors.New("shift: no open shift")

// Shift is the read-only snapshot of a cash register work session.
type Shift struct {
	ID               string           `json:"id"`
	CashRegisterID   string           `json:"cash_register_id"`
	CashRegisterName string           `json:"cash_register_name"`
	WarehouseID      string           `json:"warehouse_id"`
	WarehouseName    string           `json:"warehouse_name"`
	BaseAmount       decimal.Decimal  `json:"base_amount"`
	ExpectedCash     decimal.Decimal  `json:"expected_cash"`
	StartedAt        time.Time        `json:"started_at"`
	EndedAt          *time.Time       `json:"ended_at,omitempty"`
	Status           string           `json:"status"`
	FinalCashReal    *decimal.Decimal `json:"final_cash_real,omitempty"`
}

// CloseResult echoes the server's blind-count comparison: the signed
// difference is counted − expected (overage positive, shortage negative).
type CloseResult struct {
	Shift        Shift           `json:"shift"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	CountedCash  decimal.Decimal `json:"counted_cash"`
	Difference   decimal.Decimal `json:"difference"`
}

type Guard struct {
	api *api.Client
}

func NewGuard(c *api.Client) *Guard { return &Guard{api: c} }

// Active fetches the caller's open shift. A 404 becomes ErrNoOpenShift;
// everything else propagates untouched.
func (g *Guard) Active(ctx context.Context) (*Shift, error) {
	var s Shift
	if err := g.api.Get(ctx, "/pos/shifts/active", &s); err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, ErrNoOpenShift
		}
		return nil, err
	}
	return &s, nil
}

type openRequest struct {
	CashRegisterID string          `json:"cash_register_id"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
}

// Open starts a shift on the given register with the counted opening cash.
// One open shift per user/register is enforced server-side.
func (g *Guard) Open(ctx context.Context, cashRegisterID string, baseAmount decimal.Decimal) (*Shift, error) {
	if cashRegisterID == "" {
		return nil, fmt.Errorf("shift: open: missing cash register id")
	}
	if baseAmount.IsNegative() {
		return nil, fmt.Errorf("shift: open: base amount must not be negative")
	}
	var s Shift
	if err := g.api.Post(ctx, "/pos/shifts/open", openRequest{
		CashRegisterID: cashRegisterID,
		BaseAmount:     baseAmount,
	}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

type closeRequest struct {
	FinalCashReal decimal.Decimal `json:"final_cash_real"`
	Notes         string          `json:"notes,omitempty"`
}

// Close submits the counted cash for the blind count. The server compares it
// against its computed expected cash and returns the signed difference, which
// the UI shows before the user confirms.
func (g *Guard) Close(ctx context.Context, shiftID string, countedCash decimal.Decimal, notes string) (*CloseResult, error) {
	if shiftID == "" {
		return nil, fmt.Errorf("shift: close: missing shift id")
	}
	if countedCash.IsNegative() {
		return nil, fmt.Errorf("shift: close: counted cash must not be negative")
	}
	var res CloseResult
	if err := g.api.Post(ctx, "/shifts/"+url.PathEscape(shiftID)+"/close", closeRequest{
		FinalCashReal: countedCash,
		Notes:         notes,
	}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
