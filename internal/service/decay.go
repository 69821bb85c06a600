package service

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vietanh2810/sdeconomy/internal/domain"
	"github.com/vietanh2810/sdeconomy/internal/pricing"
	"github.com/vietanh2810/sdeconomy/internal/store"
)

type BatchLedger interface {
	AppendBatch(ctx context.Context, entries []domain.LedgerEntry) (int, error)
}

// DecayScheduler runs one ticker per distinct positive decay interval. The
// set of intervals is recomputed by Reschedule, which only starts and stops
// tickers for intervals that appeared or disappeared; group members are
// looked up again on every tick.
type DecayScheduler struct {
	store    *store.Store
	engine   *pricing.Engine
	ledger   BatchLedger
	notifier Notifier
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	parent  context.Context
	tickers map[time.Duration]*decayTicker
}

type decayTicker struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *decayTicker) stop() {
	t.cancel()
	<-t.done
}

func NewDecayScheduler(
	st *store.Store,
	engine *pricing.Engine,
	ledger BatchLedger,
	notifier Notifier,
	timeout time.Duration,
	logger *zap.Logger,
) *DecayScheduler {
	if logger == nil {
		logger = zap.L()
	}
	if timeout <= 0 {
		timeout = defaultStorageTimeout
	}
	return &DecayScheduler{
		store:    st,
		engine:   engine,
		ledger:   ledger,
		notifier: notifier,
		timeout:  timeout,
		logger:   logger,
		tickers:  make(map[time.Duration]*decayTicker),
	}
}

// Groups returns the aliases of every product keyed by its decay interval.
// Products with a non-positive interval are left out.
func (d *DecayScheduler) Groups() map[time.Duration][]string {
	groups := make(map[time.Duration][]string)
	for _, p := range d.store.Values() {
		interval := p.Snapshot().DecayInterval
		if interval <= 0 {
			continue
		}
		groups[interval] = append(groups[interval], p.Alias())
	}
	return groups
}

// Intervals returns the intervals that currently have a running ticker.
func (d *DecayScheduler) Intervals() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.running()
}

// running must be called with d.mu held.
func (d *DecayScheduler) running() []time.Duration {
	intervals := make([]time.Duration, 0, len(d.tickers))
	for interval := range d.tickers {
		intervals = append(intervals, interval)
	}
	slices.Sort(intervals)
	return intervals
}

// Start begins ticking until ctx is done or Stop is called.
func (d *DecayScheduler) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.parent != nil {
		return
	}
	d.parent = ctx
	d.restart()
}

// Reschedule regroups products by interval. It does nothing before Start.
func (d *DecayScheduler) Reschedule() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.parent == nil {
		return
	}
	d.restart()
}

func (d *DecayScheduler) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.halt()
	d.parent = nil
}

// restart must be called with d.mu held.
func (d *DecayScheduler) restart() {
	groups := d.Groups()

	changed := false
	for interval, t := range d.tickers {
		if _, ok := groups[interval]; ok {
			continue
		}
		t.stop()
		delete(d.tickers, interval)
		changed = true
	}
	for interval := range groups {
		if _, ok := d.tickers[interval]; ok {
			continue
		}
		ctx, cancel := context.WithCancel(d.parent)
		t := &decayTicker{cancel: cancel, done: make(chan struct{})}
		d.tickers[interval] = t
		go d.run(ctx, interval, t.done)
		changed = true
	}

	if changed {
		d.logger.Debug("Decay scheduled", zap.Durations("intervals", d.running()))
	}
}

// halt must be called with d.mu held.
func (d *DecayScheduler) halt() {
	for interval, t := range d.tickers {
		t.stop()
		delete(d.tickers, interval)
	}
}

func (d *DecayScheduler) run(ctx context.Context, interval time.Duration, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.DecayGroup(ctx, interval)
		}
	}
}

// DecayGroup applies one round of decay to every product whose interval is
// interval and records the affected ones in a single batch under the system
// actor. It returns the decayed states.
func (d *DecayScheduler) DecayGroup(ctx context.Context, interval time.Duration) []domain.ProductState {
	var (
		entries []domain.LedgerEntry
		decayed []domain.ProductState
	)
	for _, p := range d.store.Values() {
		if p.Snapshot().DecayInterval != interval {
			continue
		}
		removed, state := d.engine.Decay(p)
		if removed == 0 {
			continue
		}
		decayed = append(decayed, state)
		entries = append(entries, domain.LedgerEntry{
			ActorID:      domain.SystemActorID,
			Action:       domain.ActionDecay,
			ProductAlias: state.Alias,
			Amount:       float64(removed),
		})
	}

	if len(entries) == 0 {
		return nil
	}

	if d.ledger != nil {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		n, err := d.ledger.AppendBatch(lctx, entries)
		cancel()
		if err != nil {
			d.logger.Error("failed to append decay entries",
				zap.Duration("interval", interval),
				zap.Int("entries", len(entries)),
				zap.Error(err),
			)
		} else if n < len(entries) {
			d.logger.Warn("decay entries skipped for unsaved products",
				zap.Int("written", n),
				zap.Int("entries", len(entries)),
			)
		}
	}

	if d.notifier != nil {
		now := time.Now().UTC()
		for i, state := range decayed {
			d.notifier.Publish(PriceEvent{
				Action: domain.ActionDecay,
				State:  state,
				Amount: entries[i].Amount,
				At:     now,
			})
		}
	}

	d.logger.Debug("Decayed products", zap.Duration("interval", interval), zap.Int("count", len(decayed)))

	return decayed
}
