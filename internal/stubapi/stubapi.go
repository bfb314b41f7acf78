// Package stubapi is an in-memory stand-in for the remote POS backend. It
// serves the contract surface the terminal consumes — auth, shifts, catalog,
// sales, parked orders — for local development (cmd/mockapi) and for tests
// (httptest.NewServer(New(...).Engine())).
//
// It shares wire types with the client packages, so a contract drift breaks
// compilation instead of surfacing as a runtime decode error.
package stubapi

import (
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"movilpos/internal/catalog"
	"movilpos/internal/checkout"
	"movilpos/internal/session"
	"movilpos/internal/shift"
)

// User is a seeded login account.
type User struct {
	Profile      session.Profile
	PasswordHash []byte
}

// CashRegister is a register a shift can be opened on.
type CashRegister struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	WarehouseID   string `json:"warehouse_id"`
	WarehouseName string `json:"warehouse_name"`
}

// Options seeds the stub. Zero values get development defaults.
type Options struct {
	JWTSecret     string
	Users         []User
	Categories    []catalog.Category
	Products      []catalog.Product
	Customers     []catalog.Customer
	Taxes         []catalog.Tax
	Warehouses    []catalog.Warehouse
	Coupons       []catalog.Coupon
	CashRegisters []CashRegister
}

// Server holds the mutable in-memory state behind the endpoints.
type Server struct {
	mu   sync.Mutex
	opts Options

	products   []catalog.Product
	shifts     map[string]*shift.Shift // user id → active shift
	cashTotals map[string]decimal.Decimal
	parked     map[string]checkout.ParkedOrder
	sales      []checkout.SaleRequest
	invoiceSeq int

	engine *gin.Engine
}

// New builds a stub server with its routes mounted.
func New(opts Options) *Server {
	if opts.JWTSecret == "" {
		opts.JWTSecret = "dev-secret"
	}
	s := &Server{
		opts:       opts,
		products:   append([]catalog.Product(nil), opts.Products...),
		shifts:     make(map[string]*shift.Shift),
		cashTotals: make(map[string]decimal.Decimal),
		parked:     make(map[string]checkout.ParkedOrder),
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	s.routes(r)
	s.engine = r
	return s
}

// Engine returns the gin engine (mount in httptest or an http.Server).
func (s *Server) Engine() *gin.Engine { return s.engine }

// Sales returns the sale payloads recorded so far (test inspection).
func (s *Server) Sales() []checkout.SaleRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]checkout.SaleRequest, len(s.sales))
	copy(out, s.sales)
	return out
}

// ParkedCount returns how many parked orders exist (test inspection).
func (s *Server) ParkedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.parked)
}

// RemoveProduct drops a product from the catalog (simulates server-side
// deletion between park and resume).
func (s *Server) RemoveProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products = append(s.products[:i], s.products[i+1:]...)
			return
		}
	}
}

// CloseActiveShift force-closes a user's shift (simulates the race where a
// web client closes it mid-checkout).
func (s *Server) CloseActiveShift(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.shifts, userID)
}

// ── Fixtures ─────────────────────────────────────────────────────────────────

// MustHashPassword bcrypt-hashes a fixture password, panicking on failure.
func MustHashPassword(plain string) []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return hash
}

// DefaultOptions seeds a small development dataset (user "cajero"/"secret").
func DefaultOptions() Options {
	return Options{
		Users: []User{{
			Profile:      session.Profile{ID: "u-1", Username: "cajero", Name: "Cajero Demo", Role: "cashier"},
			PasswordHash: MustHashPassword("secret"),
		}},
		Categories: []catalog.Category{
			{ID: "cat-1", Name: "Bebidas", Active: true},
			{ID: "cat-2", Name: "Snacks", Active: true},
		},
		Products: []catalog.Product{
			{ID: "p-1", Barcode: "7701001", Name: "Gaseosa 400ml", CategoryID: "cat-1", Price: decimal.NewFromInt(3500), Stock: 24, Active: true},
			{ID: "p-2", Barcode: "7701002", Name: "Agua 600ml", CategoryID: "cat-1", Price: decimal.NewFromInt(2000), Stock: 36, Active: true},
			{ID: "p-3", Barcode: "7701003", Name: "Papas 45g", CategoryID: "cat-2", Price: decimal.NewFromInt(2800), Stock: 12, Active: true},
		},
		Customers: []catalog.Customer{
			{ID: "c-1", Name: "Maria Lopez", Email: "maria@example.com"},
		},
		Taxes: []catalog.Tax{
			{ID: "t-1", Name: "IVA", Percentage: decimal.NewFromInt(19)},
		},
		Warehouses: []catalog.Warehouse{
			{ID: "w-1", Name: "Bodega Principal"},
		},
		Coupons: []catalog.Coupon{
			{ID: "cp-1", Code: "PROMO10", Percentage: decimal.NewFromInt(10), Active: true},
		},
		CashRegisters: []CashRegister{
			{ID: "reg-1", Name: "Caja 1", WarehouseID: "w-1", WarehouseName: "Bodega Principal"},
		},
	}
}

// ── Auth plumbing ────────────────────────────────────────────────────────────

type authClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (s *Server) issueToken(u *User) (string, error) {
	claims := authClaims{
		UserID:   u.Profile.ID,
		Username: u.Profile.Username,
		Role:     u.Profile.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(8 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.opts.JWTSecret))
}

func (s *Server) nextInvoice() string {
	s.invoiceSeq++
	return fmt.Sprintf("POS-%06d", s.invoiceSeq)
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
