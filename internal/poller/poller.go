// Package poller drives the fetch-normalize-merge-persist cycle on a fixed
// cadence.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/traffic-notify/internal/observability"
)

// Fetcher retrieves the current raw incident batch for a city.
type Fetcher interface {
	FetchIncidents(ctx context.Context, city string) ([]json.RawMessage, error)
}

// Sink consumes a raw incident batch. The poller never touches the
// notification collection itself; all mutation happens behind the sink.
type Sink interface {
	Ingest(ctx context.Context, city string, raw []json.RawMessage)
}

// Poller polls the incident feed at a fixed interval. The current city is
// re-read on every tick, so a switch takes effect on the next fetch. A tick
// that fires while the previous fetch is still in flight is skipped rather
// than stacked.
type Poller struct {
	fetcher      Fetcher
	sink         Sink
	getCity      func() string
	interval     time.Duration
	fetchTimeout time.Duration
	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      *observability.Metrics

	inFlight atomic.Bool
	ready    atomic.Bool
}

// New creates a Poller. interval controls the tick cadence; fetchTimeout
// bounds each individual fetch.
func New(fetcher Fetcher, sink Sink, getCity func() string, interval, fetchTimeout time.Duration,
	clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Poller {
	return &Poller{
		fetcher:      fetcher,
		sink:         sink,
		getCity:      getCity,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		clock:        clock,
		logger:       logger,
		metrics:      metrics,
	}
}

// CheckReadiness returns nil once at least one poll tick has completed
// successfully.
func (p *Poller) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no poll tick has completed yet")
	}
	return nil
}

// Run polls until the context is cancelled. The first tick fires
// immediately; after cancellation no further fetches start, and the result
// of a fetch already in flight is discarded rather than applied.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "interval", p.interval, "city", p.getCity())

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			p.tick(ctx)
		}
	}
}

// tick starts one poll cycle unless the previous one is still in flight.
// The cycle runs in its own goroutine so a slow feed stalls neither the
// ticker nor shutdown.
func (p *Poller) tick(ctx context.Context) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.metrics.PollsSkipped.Inc()
		p.logger.Warn("previous poll still in flight, skipping tick")
		return
	}
	go func() {
		defer p.inFlight.Store(false)
		p.poll(ctx)
	}()
}

// poll performs one fetch-and-ingest cycle for the currently selected city.
// Errors are absorbed: a failed tick is retried implicitly by the next one.
func (p *Poller) poll(ctx context.Context) {
	city := p.getCity()
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	raw, err := p.fetcher.FetchIncidents(fetchCtx, city)
	p.metrics.PollsTotal.Inc()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.metrics.PollErrors.Inc()
		p.logger.Warn("poll failed, will retry next tick", "city", city, "error", err)
		return
	}
	if ctx.Err() != nil {
		// Cancelled while the fetch was in flight; discard the result so a
		// stopped poller never mutates state.
		return
	}

	p.sink.Ingest(ctx, city, raw)
	p.ready.Store(true)
	p.metrics.PollDuration.Observe(time.Since(start).Seconds())
	p.logger.Debug("poll complete", "city", city, "records", len(raw))
}
