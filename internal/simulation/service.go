// Package simulation advances product prices one tick at a time.
package simulation

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/valeevte/valora/internal/logging"
	"github.com/valeevte/valora/internal/metrics"
	"github.com/valeevte/valora/internal/pricing"
	"github.com/valeevte/valora/internal/products"
)

// TickResult is the record produced by one tick.
type TickResult struct {
	ProductID products.ProductID `json:"product_id"`
	Price     float64            `json:"price"`
	Timestamp time.Time          `json:"timestamp"`
}

// Publisher receives every stored tick, e.g. to push it to live clients.
type Publisher interface {
	Publish(ctx context.Context, tick TickResult)
}

type Service struct {
	store     products.Store
	rng       pricing.RandomSource
	now       func() time.Time
	publisher Publisher
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService builds a service drawing from rng. rng must be safe for
// concurrent use when Tick is called from several goroutines, see
// pricing.NewLockedSource.
func NewService(store products.Store, rng pricing.RandomSource, opts ...Option) *Service {
	s := &Service{store: store, rng: rng, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tick derives the next price of a product from its latest one and stores
// it. Store errors are returned unchanged; nothing is retried.
func (s *Service) Tick(ctx context.Context, id products.ProductID) (TickResult, error) {
	start := time.Now()
	rec, err := s.store.Advance(ctx, id, func(latest float64, _ time.Time) (float64, time.Time) {
		return pricing.NextPrice(latest, s.rng), s.now()
	})
	s.metrics.ObserveTick(start, err)
	if err != nil {
		return TickResult{}, err
	}

	res := TickResult{ProductID: rec.ProductID, Price: rec.Price, Timestamp: rec.RecordedAt}
	logging.Debug(ctx, "price ticked", "product_id", id, "price", res.Price)
	if s.publisher != nil {
		s.publisher.Publish(ctx, res)
	}
	return res, nil
}

// TickAll ticks every product with at most workers ticks in flight. Failures
// of single products are logged and counted, not returned. Products deleted
// during the pass are skipped.
func (s *Service) TickAll(ctx context.Context, workers int) (ticked, failed int, err error) {
	list, err := s.store.ListProducts(ctx)
	if err != nil {
		return 0, 0, err
	}
	if workers <= 0 {
		workers = 1
	}

	var ok, bad atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, p := range list {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			_, err := s.Tick(gctx, p.ID)
			if errors.Is(err, products.ErrNotFound) {
				return nil
			}
			if err != nil {
				logging.Warn(gctx, "tick failed", "product_id", p.ID, "error", err)
				bad.Add(1)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	return int(ok.Load()), int(bad.Load()), ctx.Err()
}
