// Package store holds the live products, keyed by normalized alias.
package store

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/vietanh2810/sdeconomy/internal/domain"
)

const shardCount = 32

type shard struct {
	mu sync.RWMutex
	m  map[string]*domain.Product
}

// Store is a sharded map of products. Operations on aliases that land in
// different shards never contend; callers serialize mutation of a single
// product through domain.Product.Update.
type Store struct {
	shards [shardCount]shard
}

func New() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i].m = make(map[string]*domain.Product)
	}
	return s
}

func (s *Store) shardFor(alias string) *shard {
	return &s.shards[xxhash.Sum64String(alias)%shardCount]
}

func (s *Store) Get(alias string) (*domain.Product, bool) {
	alias = domain.NormalizeAlias(alias)
	sh := s.shardFor(alias)

	sh.mu.RLock()
	defer sh.mu.RUnlock()
	p, ok := sh.m[alias]
	return p, ok
}

// GetOrCreate returns the product stored under alias, calling factory to
// create it when absent. created reports whether factory ran. A nil product
// from factory leaves the store unchanged.
func (s *Store) GetOrCreate(alias string, factory func(alias string) *domain.Product) (p *domain.Product, created bool) {
	alias = domain.NormalizeAlias(alias)
	sh := s.shardFor(alias)

	sh.mu.RLock()
	p, ok := sh.m[alias]
	sh.mu.RUnlock()
	if ok {
		return p, false
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if p, ok = sh.m[alias]; ok {
		return p, false
	}
	p = factory(alias)
	if p == nil {
		return nil, false
	}
	sh.m[alias] = p
	return p, true
}

func (s *Store) Remove(alias string) (*domain.Product, bool) {
	alias = domain.NormalizeAlias(alias)
	sh := s.shardFor(alias)

	sh.mu.Lock()
	defer sh.mu.Unlock()
	p, ok := sh.m[alias]
	if ok {
		delete(sh.m, alias)
	}
	return p, ok
}

// Values returns the products present at call time, ordered by alias.
func (s *Store) Values() []*domain.Product {
	var out []*domain.Product
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, p := range sh.m {
			out = append(out, p)
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias() < out[j].Alias() })
	return out
}

func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

// FindByItem returns the product that trades the given host item variant.
func (s *Store) FindByItem(itemType string, variantTag int8) (*domain.Product, bool) {
	for _, p := range s.Values() {
		st := p.Snapshot()
		if st.ItemType == itemType && st.VariantTag == variantTag {
			return p, true
		}
	}
	return nil, false
}
