package stubapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"movilpos/internal/apierror"
	"movilpos/internal/catalog"
	"movilpos/internal/checkout"
	"movilpos/internal/session"
	"movilpos/internal/shift"
)

const claimsKey = "claims"

func (s *Server) routes(r *gin.Engine) {
	r.POST("/auth/login", s.login)

	auth := r.Group("/", s.requireAuth())
	{
		auth.GET("/categories", s.listCategories)
		auth.GET("/products", s.listProducts)
		auth.GET("/products/barcode/:code", s.getProductByBarcode)
		auth.GET("/products/:id", s.getProduct)
		auth.POST("/products", s.createProduct)
		auth.PUT("/products/:id", s.updateProduct)
		auth.DELETE("/products/:id", s.deleteProduct)
		auth.GET("/customers", s.listCustomers)
		auth.POST("/customers", s.createCustomer)
		auth.GET("/taxes", s.listTaxes)
		auth.GET("/warehouses", s.listWarehouses)
		auth.GET("/coupons/validate", s.validateCoupon)

		auth.GET("/pos/shifts/active", s.activeShift)
		auth.POST("/pos/shifts/open", s.openShift)
		auth.POST("/shifts/:id/close", s.closeShift)

		auth.POST("/pos/sales", s.createSale)

		auth.POST("/orders/pause", s.pauseOrder)
		auth.GET("/orders/:id", s.getParkedOrder)
		auth.DELETE("/orders/:id", s.deleteParkedOrder)
	}
}

// requireAuth validates the Bearer token on every protected route.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("Autenticacion requerida"))
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		claims := &authClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(s.opts.JWTSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.New("Token invalido o expirado"))
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func getClaims(c *gin.Context) *authClaims {
	claims, _ := c.MustGet(claimsKey).(*authClaims)
	return claims
}

// ── Auth ─────────────────────────────────────────────────────────────────────

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IP       string `json:"ip"`
}

type loginResponse struct {
	Token string          `json:"token"`
	User  session.Profile `json:"user"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalido: "+err.Error()))
		return
	}
	for i := range s.opts.Users {
		u := &s.opts.Users[i]
		if u.Profile.Username != req.Username {
			continue
		}
		if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(req.Password)) != nil {
			break
		}
		token, err := s.issueToken(u)
		if err != nil {
			c.JSON(http.StatusInternalServerError, apierror.New("No se pudo emitir el token"))
			return
		}
		c.JSON(http.StatusOK, loginResponse{Token: token, User: u.Profile})
		return
	}
	c.JSON(http.StatusUnauthorized, apierror.New("Credenciales invalidas"))
}

// ── Catalog ──────────────────────────────────────────────────────────────────

func (s *Server) listCategories(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.Categories)
}

func (s *Server) listProducts(c *gin.Context) {
	search := strings.ToLower(c.Query("search"))
	categoryID := c.Query("category_id")

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		if categoryID != "" && p.CategoryID != categoryID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) && !strings.Contains(p.Barcode, search) {
			continue
		}
		out = append(out, p)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) findProduct(id string) *catalog.Product {
	for i := range s.products {
		if s.products[i].ID == id {
			return &s.products[i]
		}
	}
	return nil
}

func (s *Server) getProduct(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.findProduct(c.Param("id")); p != nil {
		c.JSON(http.StatusOK, *p)
		return
	}
	c.JSON(http.StatusNotFound, apierror.New("Producto no encontrado"))
}

func (s *Server) getProductByBarcode(c *gin.Context) {
	code := c.Param("code")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.Barcode == code {
			c.JSON(http.StatusOK, p)
			return
		}
	}
	c.JSON(http.StatusNotFound, apierror.New("Producto no encontrado"))
}

func (s *Server) createProduct(c *gin.Context) {
	var p catalog.Product
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalido: "+err.Error()))
		return
	}
	if p.ID == "" {
		p.ID = newID("p")
	}
	s.mu.Lock()
	s.products = append(s.products, p)
	s.mu.Unlock()
	c.JSON(http.StatusCreated, p)
}

func (s *Server) updateProduct(c *gin.Context) {
	var p catalog.Product
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalido: "+err.Error()))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.findProduct(c.Param("id"))
	if existing == nil {
		c.JSON(http.StatusNotFound, apierror.New("Producto no encontrado"))
		return
	}
	p.ID = existing.ID
	*existing = p
	c.JSON(http.StatusOK, p)
}

func (s *Server) deleteProduct(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products = append(s.products[:i], s.products[i+1:]...)
			c.Status(http.StatusNoContent)
			return
		}
	}
	c.JSON(http.StatusNotFound, apierror.New("Producto no encontrado"))
}

func (s *Server) listCustomers(c *gin.Context) {
	search := strings.ToLower(c.Query("search"))
	out := make([]catalog.Customer, 0, len(s.opts.Customers))
	for _, cu := range s.opts.Customers {
		if search != "" && !strings.Contains(strings.ToLower(cu.Name), search) {
			continue
		}
		out = append(out, cu)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createCustomer(c *gin.Context) {
	var cu catalog.Customer
	if err := c.ShouldBindJSON(&cu); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalido: "+err.Error()))
		return
	}
	if cu.ID == "" {
		cu.ID = newID("c")
	}
	s.opts.Customers = append(s.opts.Customers, cu)
	c.JSON(http.StatusCreated, cu)
}

func (s *Server) listTaxes(c *gin.Context)      { c.JSON(http.StatusOK, s.opts.Taxes) }
func (s *Server) listWarehouses(c *gin.Context) { c.JSON(http.StatusOK, s.opts.Warehouses) }

func (s *Server) validateCoupon(c *gin.Context) {
	code := c.Query("code")
	for _, cp := range s.opts.Coupons {
		if cp.Code == code && cp.Active {
			c.JSON(http.StatusOK, cp)
			return
		}
	}
	c.JSON(http.StatusNotFound, apierror.New("Cupon no valido"))
}

// ── Shifts ───────────────────────────────────────────────────────────────────

func (s *Server) activeShift(c *gin.Context) {
	claims := getClaims(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shifts[claims.UserID]
	if !ok {
		c.JSON(http.StatusNotFound, apierror.New("Sin turno abierto"))
		return
	}
	snapshot := *sh
	snapshot.ExpectedCash = sh.BaseAmount.Add(s.cashTotals[sh.ID])
	c.JSON(http.StatusOK, snapshot)
}

type openShiftRequest struct {
	CashRegisterID string          `json:"cash_register_id" binding:"required"`
	BaseAmount     decimal.Decimal `json:"base_amount"`
}

func (s *Server) openShift(c *gin.Context) {
	claims := getClaims(c)
	var req openShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalido: "+err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shifts[claims.UserID]; ok {
		c.JSON(http.StatusBadRequest, apierror.New("Ya existe un turno abierto"))
		return
	}

	var reg *CashRegister
	for i := range s.opts.CashRegisters {
		if s.opts.CashRegisters[i].ID == req.CashRegisterID {
			reg = &s.opts.CashRegisters[i]
		}
	}
	if reg == nil {
		c.JSON(http.StatusBadRequest, apierror.New("Caja registradora desconocida"))
		return
	}

	sh := &shift.Shift{
		ID:               newID("sh"),
		CashRegisterID:   reg.ID,
		CashRegisterName: reg.Name,
		WarehouseID:      reg.WarehouseID,
		WarehouseName:    reg.WarehouseName,
		BaseAmount:       req.BaseAmount,
		ExpectedCash:     req.BaseAmount,
		StartedAt:        time.Now(),
		Status:           shift.StatusOpen,
	}
	s.shifts[claims.UserID] = sh
	s.cashTotals[sh.ID] = decimal.Zero
	c.JSON(http.StatusCreated, *sh)
}

type closeShiftRequest struct {
	FinalCashReal decimal.Decimal `json:"final_cash_real"`
	Notes         string          `json:"notes"`
}

func (s *Server) closeShift(c *gin.Context) {
	claims := getClaims(c)
	var req closeShiftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalido: "+err.Error()))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shifts[claims.UserID]
	if !ok || sh.ID != c.Param("id") {
		c.JSON(http.StatusNotFound, apierror.New("Turno no encontrado"))
		return
	}

	expected := sh.BaseAmount.Add(s.cashTotals[sh.ID])
	now := time.Now()
	sh.Status = shift.StatusClosed
	sh.EndedAt = &now
	sh.ExpectedCash = expected
	counted := req.FinalCashReal
	sh.FinalCashReal = &counted
	delete(s.shifts, claims.UserID)

	c.JSON(http.StatusOK, shift.CloseResult{
		Shift:        *sh,
		ExpectedCash: expected,
		CountedCash:  counted,
		Difference:   counted.Sub(expected),
	})
}

// ── Sales ────────────────────────────────────────────────────────────────────

func (s *Server) createSale(c *gin.Context) {
	claims := getClaims(c)
	var req checkout.SaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalido: "+err.Error()))
		return
	}
	if len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, apierror.New("La venta no tiene items"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shifts[claims.UserID]
	if !ok || sh.ID != req.ShiftID {
		c.JSON(http.StatusBadRequest, apierror.New("No hay turno abierto para esta venta"))
		return
	}

	for _, item := range req.Items {
		if p := s.findProduct(item.ProductID); p != nil {
			p.Stock -= item.Quantity
		}
	}
	if req.PaymentMethod == checkout.PaymentCash {
		s.cashTotals[sh.ID] = s.cashTotals[sh.ID].Add(req.Total)
	}
	s.sales = append(s.sales, req)

	discountAmount := req.Subtotal.Mul(req.DiscountPct.Div(decimal.NewFromInt(100)))
	tax := req.Subtotal.Sub(discountAmount).Mul(decimal.New(checkout.TaxRatePercent, -2))

	c.JSON(http.StatusCreated, checkout.CompletedSale{
		ID:             newID("sale"),
		InvoiceNumber:  s.nextInvoice(),
		Subtotal:       req.Subtotal,
		DiscountAmount: discountAmount,
		Tax:            tax,
		Total:          req.Total,
		PaymentMethod:  req.PaymentMethod,
		AmountReceived: req.AmountReceived,
		Change:         req.Change,
		CreatedAt:      time.Now(),
	})
}

// ── Parked orders ────────────────────────────────────────────────────────────

func (s *Server) pauseOrder(c *gin.Context) {
	var order checkout.ParkedOrder
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("JSON invalido: "+err.Error()))
		return
	}
	if len(order.Items) == 0 {
		c.JSON(http.StatusBadRequest, apierror.New("La orden no tiene items"))
		return
	}
	order.ID = newID("ord")
	s.mu.Lock()
	s.parked[order.ID] = order
	s.mu.Unlock()
	c.JSON(http.StatusCreated, order)
}

func (s *Server) getParkedOrder(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.parked[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, apierror.New("Orden no encontrada"))
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) deleteParkedOrder(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.parked[c.Param("id")]; !ok {
		c.JSON(http.StatusNotFound, apierror.New("Orden no encontrada"))
		return
	}
	delete(s.parked, c.Param("id"))
	c.Status(http.StatusNoContent)
}
