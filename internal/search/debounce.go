// Package search debounces product lookups. Every keystroke restarts the
// timer; every issued request carries a monotonic sequence number and only
// the latest sequence's result is ever applied, so a slow early response can
// never overwrite a newer one.
package search

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"movilpos/internal/catalog"
)

// DefaultDelay matches the fixed debounce the POS screens use.
const DefaultDelay = 500 * time.Millisecond

// FetchFunc runs the actual query (normally catalog.Service.SearchProducts).
type FetchFunc func(ctx context.Context, query string) ([]catalog.Product, error)

// ApplyFunc receives results. Only the newest request's results arrive here.
type ApplyFunc func(query string, products []catalog.Product)

type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	seq     uint64 // last issued sequence
	applied uint64 // highest sequence applied so far

	fetch FetchFunc
	apply ApplyFunc
}

func NewDebouncer(delay time.Duration, fetch FetchFunc, apply ApplyFunc) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{delay: delay, fetch: fetch, apply: apply}
}

// Input registers a keystroke. The pending timer (if any) restarts; when it
// fires the query runs in the background. Fetch failures are swallowed with
// a log line — a transient blip must not interrupt active selling.
func (d *Debouncer) Input(ctx context.Context, query string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		d.seq++
		seq := d.seq
		d.mu.Unlock()

		go d.run(ctx, seq, query)
	})
}

// Flush runs the query immediately (e.g. barcode scan completion), skipping
// the delay but still going through the sequence guard.
func (d *Debouncer) Flush(ctx context.Context, query string) {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	seq := d.seq
	d.mu.Unlock()

	d.run(ctx, seq, query)
}

// Stop cancels any pending query without running it.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) run(ctx context.Context, seq uint64, query string) {
	products, err := d.fetch(ctx, query)
	if err != nil {
		log.Debug().Err(err).Str("query", query).Msg("search: fetch failed")
		return
	}

	d.mu.Lock()
	// Discard when a newer request was issued OR a newer result already
	// landed (out-of-order completion).
	if seq != d.seq || seq <= d.applied {
		d.mu.Unlock()
		return
	}
	d.applied = seq
	d.mu.Unlock()

	// Apply outside the lock so the callback may issue the next search.
	d.apply(query, products)
}
