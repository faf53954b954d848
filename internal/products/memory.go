package products

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore keeps everything in process memory.
//
// The product map lock is only held to look entries up; every product has its
// own mutex guarding its records, so appends on different products never wait
// for each other.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[ProductID]*entry

	lastProduct atomic.Int64
	lastRecord  atomic.Int64
	now         func() time.Time
}

type entry struct {
	mu      sync.Mutex
	product Product // immutable after creation
	records []PriceRecord
	deleted bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[ProductID]*entry),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) lookup(id ProductID) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.products[id]
	return e, ok
}

func (s *MemoryStore) AddProduct(_ context.Context, name string, initialPrice float64) (ProductID, error) {
	name, initialPrice, err := validateProduct(name, initialPrice)
	if err != nil {
		return 0, err
	}
	id := ProductID(s.lastProduct.Add(1))
	e := &entry{product: Product{
		ID:           id,
		Name:         name,
		InitialPrice: initialPrice,
		CreatedAt:    s.now(),
	}}

	s.mu.Lock()
	s.products[id] = e
	s.mu.Unlock()
	return id, nil
}

func (s *MemoryStore) GetProduct(_ context.Context, id ProductID) (Product, error) {
	e, ok := s.lookup(id)
	if !ok {
		return Product{}, notFound(id)
	}
	return e.product, nil
}

func (s *MemoryStore) DeleteProduct(_ context.Context, id ProductID) error {
	e, ok := s.lookup(id)
	if !ok {
		return notFound(id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return notFound(id)
	}
	e.deleted = true
	e.records = nil

	s.mu.Lock()
	delete(s.products, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LatestPrice(_ context.Context, id ProductID) (float64, error) {
	e, ok := s.lookup(id)
	if !ok {
		return 0, notFound(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return 0, notFound(id)
	}
	price, _ := e.latest()
	return price, nil
}

func (s *MemoryStore) AppendPrice(_ context.Context, id ProductID, price float64, at time.Time) (PriceRecord, error) {
	e, ok := s.lookup(id)
	if !ok {
		return PriceRecord{}, notFound(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return PriceRecord{}, conflict(id)
	}
	_, last := e.latest()
	return s.appendLocked(e, price, at, last)
}

func (s *MemoryStore) History(_ context.Context, id ProductID) ([]PriceRecord, error) {
	e, ok := s.lookup(id)
	if !ok {
		return nil, notFound(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, notFound(id)
	}
	out := make([]PriceRecord, len(e.records))
	copy(out, e.records)
	return out, nil
}

func (s *MemoryStore) ListProducts(_ context.Context) ([]Product, error) {
	s.mu.RLock()
	out := make([]Product, 0, len(s.products))
	for _, e := range s.products {
		out = append(out, e.product)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Advance(_ context.Context, id ProductID, next NextFunc) (PriceRecord, error) {
	e, ok := s.lookup(id)
	if !ok {
		return PriceRecord{}, notFound(id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return PriceRecord{}, conflict(id)
	}
	latest, last := e.latest()
	price, at := next(latest, last)
	return s.appendLocked(e, price, clampTime(at.UTC(), last), last)
}

// appendLocked requires e.mu.
func (s *MemoryStore) appendLocked(e *entry, price float64, at, last time.Time) (PriceRecord, error) {
	price, err := validateRecord(price, at, last)
	if err != nil {
		return PriceRecord{}, err
	}
	rec := PriceRecord{
		ID:         s.lastRecord.Add(1),
		ProductID:  e.product.ID,
		Price:      price,
		RecordedAt: at.UTC(),
	}
	e.records = append(e.records, rec)
	return rec, nil
}

// latest requires e.mu.
func (e *entry) latest() (float64, time.Time) {
	if n := len(e.records); n > 0 {
		return e.records[n-1].Price, e.records[n-1].RecordedAt
	}
	return e.product.InitialPrice, time.Time{}
}
