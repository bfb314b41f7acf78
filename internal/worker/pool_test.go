package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movilpos/internal/receipt"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func sampleReceipt(invoice string) receipt.Receipt {
	return receipt.Receipt{
		Business:      "Tienda Demo",
		InvoiceNumber: invoice,
		CustomerName:  "Maria Lopez",
		Lines: []receipt.Line{
			{Name: "Gaseosa 400ml", Quantity: 2, Subtotal: decimal.NewFromInt(7000)},
		},
		Subtotal:       decimal.NewFromInt(7000),
		Tax:            decimal.NewFromInt(1330),
		Total:          decimal.NewFromInt(8330),
		PaymentMethod:  "cash",
		AmountReceived: decimal.NewFromInt(10000),
		Change:         decimal.NewFromInt(1670),
		CreatedAt:      time.Date(2026, 3, 14, 16, 20, 0, 0, time.UTC),
	}
}

// ── withRetry ────────────────────────────────────────────────────────────────

func TestWithRetryFirstAttemptSucceeds(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 3, func(int) error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryRecoversAfterFailure(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), 3, func(int) error {
		attempts++
		if attempts == 1 {
			return errors.New("transitorio")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	boom := errors.New("permanente")
	attempts := 0
	err := withRetry(context.Background(), 2, func(int) error {
		attempts++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, attempts)
}

func TestWithRetryAbortsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := withRetry(ctx, 3, func(int) error {
		attempts++
		return errors.New("falla")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts, "a cancelled context must stop before the backoff wait")
}

// ── Dispatcher / DLQ ─────────────────────────────────────────────────────────

func TestDispatcherEnqueueReceipt(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	d := NewDispatcher(rdb)
	require.NoError(t, d.EnqueueReceipt(ctx, ReceiptJobPayload{Receipt: sampleReceipt("POS-000001")}))

	raw, err := rdb.RPop(ctx, QueueReceipt).Result()
	require.NoError(t, err)

	var job Job
	require.NoError(t, json.Unmarshal([]byte(raw), &job))
	assert.Equal(t, "receipt", job.Type)

	var payload ReceiptJobPayload
	require.NoError(t, json.Unmarshal(job.Payload, &payload))
	assert.Equal(t, "POS-000001", payload.Receipt.InvoiceNumber)
}

func TestSendToDLQ(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	SendToDLQ(ctx, rdb, QueueReceipt, "receipt", json.RawMessage(`{"x":1}`), "render failed", 3)

	n, err := DLQLength(ctx, rdb, QueueReceipt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	raw, err := rdb.RPop(ctx, DLQPrefix+QueueReceipt).Result()
	require.NoError(t, err)
	var entry DLQEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &entry))
	assert.Equal(t, QueueReceipt, entry.OriginalQueue)
	assert.Equal(t, "receipt", entry.JobType)
	assert.Equal(t, "render failed", entry.Reason)
	assert.Equal(t, 3, entry.Attempts)
}

func TestDLQLengthEmpty(t *testing.T) {
	rdb := newTestRedis(t)
	n, err := DLQLength(context.Background(), rdb, QueueEmail)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// ── ReceiptWorker ────────────────────────────────────────────────────────────

func TestReceiptWorkerRendersAndChainsEmail(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	dir := t.TempDir()

	dispatcher := NewDispatcher(rdb)
	w := NewReceiptWorker(dir, dispatcher)

	payload, err := json.Marshal(ReceiptJobPayload{
		Receipt:       sampleReceipt("POS-000007"),
		CustomerEmail: "maria@example.com",
	})
	require.NoError(t, err)
	require.NoError(t, w.Process(ctx, payload))

	assert.FileExists(t, filepath.Join(dir, "recibo_POS-000007.pdf"))

	// The email job was chained onto its queue with the rendered path.
	raw, err := rdb.RPop(ctx, QueueEmail).Result()
	require.NoError(t, err)
	var job Job
	require.NoError(t, json.Unmarshal([]byte(raw), &job))
	assert.Equal(t, "email", job.Type)
	var emailJob EmailJobPayload
	require.NoError(t, json.Unmarshal(job.Payload, &emailJob))
	assert.Equal(t, "maria@example.com", emailJob.ToEmail)
	assert.Equal(t, filepath.Join(dir, "recibo_POS-000007.pdf"), emailJob.PDFPath)
}

func TestReceiptWorkerSkipsEmailWithoutAddress(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()
	dir := t.TempDir()

	w := NewReceiptWorker(dir, NewDispatcher(rdb))

	payload, err := json.Marshal(ReceiptJobPayload{Receipt: sampleReceipt("POS-000008")})
	require.NoError(t, err)
	require.NoError(t, w.Process(ctx, payload))

	assert.FileExists(t, filepath.Join(dir, "recibo_POS-000008.pdf"))
	n, err := rdb.LLen(ctx, QueueEmail).Result()
	require.NoError(t, err)
	assert.Zero(t, n, "no email address, no email job")
}

func TestReceiptWorkerRejectsInvalidPayload(t *testing.T) {
	w := NewReceiptWorker(t.TempDir(), nil)
	assert.Error(t, w.Process(context.Background(), json.RawMessage(`{broken`)))
}

// ── Pool ─────────────────────────────────────────────────────────────────────

func TestPoolProcessesEnqueuedReceipt(t *testing.T) {
	rdb := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()

	dispatcher := NewDispatcher(rdb)
	StartPool(ctx, rdb, &Handlers{Receipt: NewReceiptWorker(dir, dispatcher)}, 1)

	require.NoError(t, dispatcher.EnqueueReceipt(ctx, ReceiptJobPayload{Receipt: sampleReceipt("POS-000009")}))

	expected := filepath.Join(dir, "recibo_POS-000009.pdf")
	assert.Eventually(t, func() bool {
		_, err := os.Stat(expected)
		return err == nil
	}, 3*time.Second, 20*time.Millisecond, "worker should consume the job and render the PDF")
}
