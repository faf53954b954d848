// Package analytics derives volatility rankings and dashboard snapshots from
// stored price histories.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/valeevte/valora/internal/metrics"
	"github.com/valeevte/valora/internal/pricing"
	"github.com/valeevte/valora/internal/products"
)

const (
	// TopN bounds both rankings.
	TopN = 5
	// NoProduct names the most volatile product when nothing can be ranked.
	NoProduct = "none"
)

// Reader is the part of products.Store the engine scans.
type Reader interface {
	ListProducts(ctx context.Context) ([]products.Product, error)
	History(ctx context.Context, id products.ProductID) ([]products.PriceRecord, error)
}

// Series is one product with its ascending history.
type Series struct {
	Product products.Product
	History []products.PriceRecord
}

type Ranked struct {
	Name      string  `json:"name"`
	AvgChange float64 `json:"avgChange"`
}

type CombinedSeries struct {
	Timestamps []string  `json:"timestamps"`
	Prices     []float64 `json:"prices"`
}

type Snapshot struct {
	TotalProducts           int            `json:"totalProducts"`
	UpdatesToday            int            `json:"updatesToday"`
	MostVolatileProductName string         `json:"mostVolatileProductName"`
	TopVolatile             []Ranked       `json:"topVolatile"`
	TopStable               []Ranked       `json:"topStable"`
	CombinedSeries          CombinedSeries `json:"combinedSeries"`
}

type Engine struct {
	store   Reader
	loc     *time.Location
	now     func() time.Time
	metrics *metrics.Metrics
}

type Option func(*Engine)

// WithLocation sets the zone whose midnight starts "today". Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(store Reader, opts ...Option) *Engine {
	e := &Engine{store: store, loc: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Snapshot scans every product. Each history is read on its own, so writers
// are never blocked for the whole scan; products deleted while scanning are
// left out.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	start := time.Now()
	list, err := e.store.ListProducts(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list products: %w", err)
	}

	series := make([]Series, 0, len(list))
	for _, p := range list {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}
		hist, err := e.store.History(ctx, p.ID)
		if errors.Is(err, products.ErrNotFound) {
			continue
		}
		if err != nil {
			return Snapshot{}, fmt.Errorf("history of product %d: %w", p.ID, err)
		}
		series = append(series, Series{Product: p, History: hist})
	}

	snap := Build(series, StartOfDay(e.now(), e.loc), e.loc)
	e.metrics.ObserveSnapshot(start, snap.TotalProducts)
	return snap, nil
}

// Build aggregates already loaded series. Records at or after since count as
// today's updates; timestamps are rendered in loc.
func Build(series []Series, since time.Time, loc *time.Location) Snapshot {
	snap := Snapshot{
		TotalProducts:           len(series),
		MostVolatileProductName: NoProduct,
		TopVolatile:             RankMostVolatile(series),
		TopStable:               RankMostStable(series),
		CombinedSeries: CombinedSeries{
			Timestamps: make([]string, 0),
			Prices:     make([]float64, 0),
		},
	}
	if len(snap.TopVolatile) > 0 {
		snap.MostVolatileProductName = snap.TopVolatile[0].Name
	}
	for _, s := range series {
		for _, r := range s.History {
			if !r.RecordedAt.Before(since) {
				snap.UpdatesToday++
			}
			snap.CombinedSeries.Timestamps = append(snap.CombinedSeries.Timestamps, r.RecordedAt.In(loc).Format(time.RFC3339))
			snap.CombinedSeries.Prices = append(snap.CombinedSeries.Prices, r.Price)
		}
	}
	return snap
}

// StartOfDay returns local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Volatility is the mean absolute change between consecutive prices, or 0
// for fewer than two records.
func Volatility(history []products.PriceRecord) float64 {
	if len(history) < 2 {
		return 0
	}
	sum := decimal.Zero
	prev := decimal.NewFromFloat(history[0].Price)
	for _, r := range history[1:] {
		cur := decimal.NewFromFloat(r.Price)
		sum = sum.Add(cur.Sub(prev).Abs())
		prev = cur
	}
	v, _ := sum.Div(decimal.NewFromInt(int64(len(history) - 1))).Float64()
	return v
}

// RankMostVolatile returns up to TopN products by descending volatility.
func RankMostVolatile(series []Series) []Ranked {
	return rank(series, func(a, b float64) bool { return a > b })
}

// RankMostStable returns up to TopN products by ascending volatility.
func RankMostStable(series []Series) []Ranked {
	return rank(series, func(a, b float64) bool { return a < b })
}

type scored struct {
	name string
	id   products.ProductID
	vol  float64
}

// rank skips series with fewer than two records and breaks ties by name,
// then by id.
func rank(series []Series, before func(a, b float64) bool) []Ranked {
	all := make([]scored, 0, len(series))
	for _, s := range series {
		if len(s.History) < 2 {
			continue
		}
		all = append(all, scored{name: s.Product.Name, id: s.Product.ID, vol: Volatility(s.History)})
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.vol != b.vol {
			return before(a.vol, b.vol)
		}
		if a.name != b.name {
			return a.name < b.name
		}
		return a.id < b.id
	})
	if len(all) > TopN {
		all = all[:TopN]
	}
	out := make([]Ranked, len(all))
	for i, s := range all {
		out[i] = Ranked{Name: s.name, AvgChange: pricing.Round(s.vol)}
	}
	return out
}
