package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movilpos/internal/catalog"
)

// applyRecorder captures every apply callback for later inspection.
type applyRecorder struct {
	mu      sync.Mutex
	queries []string
}

func (r *applyRecorder) apply(query string, _ []catalog.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
}

func (r *applyRecorder) applied() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.queries))
	copy(out, r.queries)
	return out
}

func echoFetch(ctx context.Context, query string) ([]catalog.Product, error) {
	return []catalog.Product{{ID: "p-1", Name: query, Price: decimal.NewFromInt(1000)}}, nil
}

func TestInputDebouncesKeystrokes(t *testing.T) {
	var mu sync.Mutex
	var fetched []string
	fetch := func(ctx context.Context, query string) ([]catalog.Product, error) {
		mu.Lock()
		fetched = append(fetched, query)
		mu.Unlock()
		return nil, nil
	}
	rec := &applyRecorder{}
	d := NewDebouncer(30*time.Millisecond, fetch, rec.apply)
	defer d.Stop()

	ctx := context.Background()
	// Three quick keystrokes — only the last survives the timer restarts.
	d.Input(ctx, "g")
	d.Input(ctx, "ga")
	d.Input(ctx, "gas")

	time.Sleep(120 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, fetched, 1)
	assert.Equal(t, "gas", fetched[0])
	assert.Equal(t, []string{"gas"}, rec.applied())
}

func TestSlowEarlyResponseNeverOverwritesNewer(t *testing.T) {
	release := make(chan struct{})
	fetch := func(ctx context.Context, query string) ([]catalog.Product, error) {
		if query == "lenta" {
			<-release
		}
		return echoFetch(ctx, query)
	}
	rec := &applyRecorder{}
	d := NewDebouncer(time.Millisecond, fetch, rec.apply)
	defer d.Stop()

	ctx := context.Background()
	d.Flush(ctx, "rapida") // issues seq 1... but we fire the slow one first

	// Issue the slow request with an older sequence by running the two
	// flushes from separate goroutines: "lenta" blocks until released,
	// "rapida2" completes and applies first.
	done := make(chan struct{})
	go func() {
		d.Flush(ctx, "lenta")
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	d.Flush(ctx, "rapida2")

	close(release)
	<-done
	time.Sleep(20 * time.Millisecond)

	applied := rec.applied()
	require.NotEmpty(t, applied)
	// The stale "lenta" result must never appear after "rapida2".
	assert.Equal(t, "rapida2", applied[len(applied)-1])
	for _, q := range applied {
		assert.NotEqual(t, "lenta", q)
	}
}

func TestFlushSkipsDelay(t *testing.T) {
	rec := &applyRecorder{}
	d := NewDebouncer(time.Hour, echoFetch, rec.apply)
	defer d.Stop()

	d.Flush(context.Background(), "7701001")
	assert.Equal(t, []string{"7701001"}, rec.applied())
}

func TestStopCancelsPendingQuery(t *testing.T) {
	rec := &applyRecorder{}
	d := NewDebouncer(20*time.Millisecond, echoFetch, rec.apply)

	d.Input(context.Background(), "gaseosa")
	d.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, rec.applied())
}

func TestFetchErrorIsSwallowed(t *testing.T) {
	fetch := func(ctx context.Context, query string) ([]catalog.Product, error) {
		return nil, errors.New("backend caido")
	}
	rec := &applyRecorder{}
	d := NewDebouncer(time.Millisecond, fetch, rec.apply)
	defer d.Stop()

	d.Flush(context.Background(), "gaseosa")
	assert.Empty(t, rec.applied(), "a failed fetch must not reach apply")
}
