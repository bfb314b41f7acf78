// Package receipt renders thermal-style PDF receipts for completed sales.
// 74×105mm pages approximate receipt paper; output lands in the configured
// storage directory.
package receipt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

// Line is one printed item row.
type Line struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Receipt is everything the printed ticket needs. It is assembled at
// checkout time, before the draft is cleared.
type Receipt struct {
	Business       string          `json:"business"`
	InvoiceNumber  string          `json:"invoice_number"`
	CustomerName   string          `json:"customer_name"`
	Lines          []Line          `json:"lines"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	PaymentMethod  string          `json:"payment_method"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	Change         decimal.Decimal `json:"change"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Generate writes the receipt PDF into dir (created if needed) and returns
// the absolute path of the file.
func Generate(r Receipt, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("receipt: create storage dir: %w", err)
	}

	name := strings.ReplaceAll(r.InvoiceNumber, string(filepath.Separator), "_")
	if name == "" {
		name = fmt.Sprintf("sin-numero-%d", r.CreatedAt.Unix())
	}
	path := filepath.Join(dir, "recibo_"+name+".pdf")

	// 74mm × 105mm — close to thermal receipt paper.
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: 74, Ht: 105},
	})
	pdf.SetMargins(4, 4, 4)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 8

	business := r.Business
	if business == "" {
		business = "MovilPOS"
	}
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(contentW, 7, business, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(contentW, 5, "Recibo de venta", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(contentW, 5, "Factura "+r.InvoiceNumber, "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(contentW, 4, r.CreatedAt.Format("02/01/2006  15:04"), "", 1, "L", false, 0, "")
	if r.CustomerName != "" {
		pdf.CellFormat(contentW, 4, "Cliente: "+truncate(r.CustomerName, 30), "", 1, "L", false, 0, "")
	}
	pdf.Ln(2)

	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	col1 := contentW * 0.52
	col2 := contentW * 0.16
	col3 := contentW * 0.32

	pdf.SetFont("Helvetica", "B", 7)
	pdf.CellFormat(col1, 5, "Producto", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col2, 5, "Cant", "B", 0, "C", false, 0, "")
	pdf.CellFormat(col3, 5, "Subtotal", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	for _, line := range r.Lines {
		pdf.CellFormat(col1, 5, truncate(line.Name, 22), "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 5, fmt.Sprintf("x%d", line.Quantity), "", 0, "C", false, 0, "")
		pdf.CellFormat(col3, 5, "$"+line.Subtotal.StringFixed(2), "", 1, "R", false, 0, "")
	}

	pdf.Ln(2)
	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(col1+col2, 4, "Subtotal:", "", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 4, "$"+r.Subtotal.StringFixed(2), "", 1, "R", false, 0, "")
	if !r.DiscountAmount.IsZero() {
		pdf.CellFormat(col1+col2, 4, "Descuento:", "", 0, "L", false, 0, "")
		pdf.CellFormat(col3, 4, "-$"+r.DiscountAmount.StringFixed(2), "", 1, "R", false, 0, "")
	}
	pdf.CellFormat(col1+col2, 4, "IVA (19%):", "", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 4, "$"+r.Tax.StringFixed(2), "", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(col1+col2, 6, "TOTAL:", "", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 6, "$"+r.Total.StringFixed(2), "", 1, "R", false, 0, "")

	pdf.Ln(1)
	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(col1+col2, 4, "Pago ("+r.PaymentMethod+"):", "", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 4, "$"+r.AmountReceived.StringFixed(2), "", 1, "R", false, 0, "")
	if !r.Change.IsZero() {
		pdf.CellFormat(col1+col2, 4, "Cambio:", "", 0, "L", false, 0, "")
		pdf.CellFormat(col3, 4, "$"+r.Change.StringFixed(2), "", 1, "R", false, 0, "")
	}

	pdf.Ln(3)
	pdf.SetFont("Helvetica", "I", 7)
	pdf.CellFormat(contentW, 4, "¡Gracias por su compra!", "", 1, "C", false, 0, "")

	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("receipt: write file: %w", err)
	}
	return path, nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
