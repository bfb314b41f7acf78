package receipt

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReceipt() Receipt {
	return Receipt{
		Business:      "Tienda Demo",
		InvoiceNumber: "POS-000042",
		CustomerName:  "Maria Lopez",
		Lines: []Line{
			{Name: "Gaseosa 400ml", Quantity: 2, Subtotal: decimal.NewFromInt(7000)},
			{Name: "Papas 45g", Quantity: 2, Subtotal: decimal.NewFromInt(5600)},
		},
		Subtotal:       decimal.NewFromInt(12600),
		DiscountAmount: decimal.NewFromInt(1260),
		Tax:            decimal.NewFromFloat(2154.6),
		Total:          decimal.NewFromFloat(13494.6),
		PaymentMethod:  "cash",
		AmountReceived: decimal.NewFromInt(15000),
		Change:         decimal.NewFromFloat(1505.4),
		CreatedAt:      time.Date(2026, 3, 14, 16, 20, 0, 0, time.UTC),
	}
}

func TestGenerateWritesPDF(t *testing.T) {
	dir := t.TempDir()

	path, err := Generate(sampleReceipt(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "recibo_POS-000042.pdf"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// PDF magic bytes
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(data[:4]))
}

func TestGenerateCreatesStorageDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "anidado", "recibos")

	path, err := Generate(sampleReceipt(), dir)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestGenerateWithoutInvoiceNumber(t *testing.T) {
	r := sampleReceipt()
	r.InvoiceNumber = ""

	path, err := Generate(r, t.TempDir())
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "corto", truncate("corto", 10))
	assert.Equal(t, "Gaseosa 4…", truncate("Gaseosa 400ml sin azucar", 10))
}
