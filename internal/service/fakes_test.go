package service

import (
	"context"
	"sync"

	"github.com/vietanh2810/sdeconomy/internal/domain"
)

const actor = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

type fakeProducts struct {
	mu        sync.Mutex
	rows      map[string]domain.ProductState
	saveCalls int
	saveErr   error
	deleteErr error
	loadErr   error

	// When set, SaveAll reports on saving and waits for release before writing.
	saving  chan struct{}
	release chan struct{}
}

func newFakeProducts(states ...domain.ProductState) *fakeProducts {
	f := &fakeProducts{rows: make(map[string]domain.ProductState)}
	for _, s := range states {
		f.rows[s.Alias] = s
	}
	return f
}

func (f *fakeProducts) LoadAll(context.Context) ([]domain.ProductState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.loadErr != nil {
		return nil, f.loadErr
	}
	states := make([]domain.ProductState, 0, len(f.rows))
	for _, s := range f.rows {
		states = append(states, s)
	}
	return states, nil
}

func (f *fakeProducts) SaveAll(_ context.Context, states []domain.ProductState) error {
	if f.saving != nil {
		f.saving <- struct{}{}
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, s := range states {
		f.rows[s.Alias] = s
	}
	return nil
}

func (f *fakeProducts) SaveOne(ctx context.Context, state domain.ProductState) error {
	return f.SaveAll(ctx, []domain.ProductState{state})
}

func (f *fakeProducts) Delete(_ context.Context, alias string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.rows[alias]; !ok {
		return ErrProductNotFound
	}
	delete(f.rows, alias)
	return nil
}

func (f *fakeProducts) get(alias string) (domain.ProductState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.rows[alias]
	return s, ok
}

func (f *fakeProducts) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.saveCalls
}

type fakeLedger struct {
	mu       sync.Mutex
	entries  []domain.LedgerEntry
	batches  int
	err      error
	queried  []int
	products *fakeProducts
}

func (l *fakeLedger) Append(ctx context.Context, entry domain.LedgerEntry) error {
	n, err := l.AppendBatch(ctx, []domain.LedgerEntry{entry})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (l *fakeLedger) AppendBatch(_ context.Context, entries []domain.LedgerEntry) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.batches++
	if l.err != nil {
		return 0, l.err
	}
	n := 0
	for _, e := range entries {
		if l.products != nil {
			if _, ok := l.products.get(e.ProductAlias); !ok {
				continue
			}
		}
		l.entries = append(l.entries, e)
		n++
	}
	return n, nil
}

func (l *fakeLedger) Query(_ context.Context, actorID string, page int) ([]domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.queried = append(l.queried, page)
	var out []domain.LedgerEntry
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].ActorID == actorID {
			out = append(out, l.entries[i])
		}
	}
	return out, nil
}

func (l *fakeLedger) all() []domain.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]domain.LedgerEntry(nil), l.entries...)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []PriceEvent
}

func (n *fakeNotifier) Publish(event PriceEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.events = append(n.events, event)
}

func (n *fakeNotifier) all() []PriceEvent {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]PriceEvent(nil), n.events...)
}
