package worker

// Renders the PDF for a completed sale and, when the customer left an email,
// chains an email job. Failures here never touch the sale itself — it was
// already accepted by the backend.

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"movilpos/internal/receipt"
)

// ReceiptJobPayload is the envelope enqueued by the checkout flow.
type ReceiptJobPayload struct {
	Receipt       receipt.Receipt `json:"receipt"`
	CustomerEmail string          `json:"customer_email,omitempty"`
}

type ReceiptWorker struct {
	storagePath string
	dispatcher  *Dispatcher
}

func NewReceiptWorker(storagePath string, dispatcher *Dispatcher) *ReceiptWorker {
	return &ReceiptWorker{storagePath: storagePath, dispatcher: dispatcher}
}

// Process renders the PDF and enqueues the email job when applicable.
func (w *ReceiptWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload ReceiptJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("receipt_worker: invalid payload: %w", err)
	}

	path, err := receipt.Generate(payload.Receipt, w.storagePath)
	if err != nil {
		return fmt.Errorf("receipt_worker: %w", err)
	}
	log.Info().Str("pdf", path).Str("invoice", payload.Receipt.InvoiceNumber).Msg("receipt_worker: PDF generated")

	if payload.CustomerEmail == "" || w.dispatcher == nil {
		return nil
	}
	emailJob := EmailJobPayload{
		ToEmail: payload.CustomerEmail,
		Subject: fmt.Sprintf("Recibo de compra — Factura %s", payload.Receipt.InvoiceNumber),
		Body: fmt.Sprintf("Adjunto encontrarás tu recibo de compra.\nTotal: $%s",
			payload.Receipt.Total.StringFixed(2)),
		PDFPath: path,
	}
	if err := w.dispatcher.EnqueueEmail(ctx, emailJob); err != nil {
		return fmt.Errorf("receipt_worker: enqueue email: %w", err)
	}
	return nil
}
