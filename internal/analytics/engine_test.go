package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/valeevte/valora/internal/products"
)

var t0 = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func history(prices ...float64) []products.PriceRecord {
	out := make([]products.PriceRecord, len(prices))
	for i, p := range prices {
		out[i] = products.PriceRecord{ID: int64(i + 1), Price: p, RecordedAt: t0.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func series(id products.ProductID, name string, prices ...float64) Series {
	return Series{Product: products.Product{ID: id, Name: name}, History: history(prices...)}
}

func TestVolatility(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []float64{10}, 0},
		{"constant", []float64{10, 10, 10}, 0},
		{"up and down", []float64{10, 12, 11}, 1.5},
		{"cents", []float64{10.1, 10.2, 10.1}, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Volatility(history(tt.prices...)); got != tt.want {
				t.Errorf("Volatility(%v) = %v, want %v", tt.prices, got, tt.want)
			}
		})
	}
}

func TestRankingTieBreakByName(t *testing.T) {
	in := []Series{
		series(1, "C", 5, 7),
		series(2, "A", 10, 10.5),
		series(3, "B", 10, 12),
		series(4, "D", 10), // not enough records
	}

	volatile := RankMostVolatile(in)
	wantVolatile := []Ranked{{"B", 2}, {"C", 2}, {"A", 0.5}}
	if !equalRanked(volatile, wantVolatile) {
		t.Errorf("RankMostVolatile = %v, want %v", volatile, wantVolatile)
	}

	stable := RankMostStable(in)
	wantStable := []Ranked{{"A", 0.5}, {"B", 2}, {"C", 2}}
	if !equalRanked(stable, wantStable) {
		t.Errorf("RankMostStable = %v, want %v", stable, wantStable)
	}
}

func TestRankingKeepsTopFive(t *testing.T) {
	var in []Series
	for i := 1; i <= 7; i++ {
		in = append(in, series(products.ProductID(i), string(rune('a'+i-1)), 10, 10+float64(i)))
	}
	volatile := RankMostVolatile(in)
	if len(volatile) != TopN {
		t.Fatalf("len = %d, want %d", len(volatile), TopN)
	}
	if volatile[0].Name != "g" || volatile[4].Name != "c" {
		t.Errorf("RankMostVolatile = %v", volatile)
	}
	stable := RankMostStable(in)
	if stable[0].Name != "a" || stable[4].Name != "e" {
		t.Errorf("RankMostStable = %v", stable)
	}
}

func TestBuild(t *testing.T) {
	since := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	yesterday := products.PriceRecord{Price: 9, RecordedAt: since.Add(-time.Minute)}
	widget := Series{
		Product: products.Product{ID: 1, Name: "Widget"},
		History: append([]products.PriceRecord{yesterday}, history(10, 11)...),
	}
	gadget := series(2, "Gadget", 50)

	snap := Build([]Series{widget, gadget}, since, time.UTC)
	if snap.TotalProducts != 2 {
		t.Errorf("TotalProducts = %d, want 2", snap.TotalProducts)
	}
	if snap.UpdatesToday != 3 {
		t.Errorf("UpdatesToday = %d, want 3", snap.UpdatesToday)
	}
	if snap.MostVolatileProductName != "Widget" {
		t.Errorf("MostVolatileProductName = %q, want Widget", snap.MostVolatileProductName)
	}
	wantPrices := []float64{9, 10, 11, 50}
	if len(snap.CombinedSeries.Prices) != len(wantPrices) || len(snap.CombinedSeries.Timestamps) != len(wantPrices) {
		t.Fatalf("CombinedSeries = %+v", snap.CombinedSeries)
	}
	for i, p := range wantPrices {
		if snap.CombinedSeries.Prices[i] != p {
			t.Errorf("Prices[%d] = %v, want %v", i, snap.CombinedSeries.Prices[i], p)
		}
	}
	if got := snap.CombinedSeries.Timestamps[1]; got != "2026-10-14T09:00:00Z" {
		t.Errorf("Timestamps[1] = %q", got)
	}
}

func TestBuildEmpty(t *testing.T) {
	snap := Build(nil, t0, time.UTC)
	if snap.MostVolatileProductName != NoProduct {
		t.Errorf("MostVolatileProductName = %q, want %q", snap.MostVolatileProductName, NoProduct)
	}
	if snap.TopVolatile == nil || snap.TopStable == nil || snap.CombinedSeries.Prices == nil {
		t.Error("empty snapshot must use empty slices, not nil")
	}
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	// 22:30 UTC is already the next day at UTC+3
	got := StartOfDay(time.Date(2026, 10, 14, 22, 30, 0, 0, time.UTC), loc)
	want := time.Date(2026, 10, 15, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("StartOfDay = %v, want %v", got, want)
	}
}

func TestEngineSnapshot(t *testing.T) {
	ctx := context.Background()
	store := products.NewMemoryStore()
	widget, _ := store.AddProduct(ctx, "Widget", 100)
	gadget, _ := store.AddProduct(ctx, "Gadget", 10)
	_, _ = store.AddProduct(ctx, "Fresh", 5)

	day := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	mustAppend(t, store, widget, 100, day.Add(-time.Hour))
	mustAppend(t, store, widget, 104, day.Add(time.Hour))
	mustAppend(t, store, gadget, 10, day.Add(time.Hour))
	mustAppend(t, store, gadget, 10.5, day.Add(2*time.Hour))

	e := NewEngine(store, WithClock(func() time.Time { return day.Add(12 * time.Hour) }))
	snap, err := e.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.TotalProducts != 3 || snap.UpdatesToday != 3 {
		t.Errorf("TotalProducts/UpdatesToday = %d/%d, want 3/3", snap.TotalProducts, snap.UpdatesToday)
	}
	if snap.MostVolatileProductName != "Widget" {
		t.Errorf("MostVolatileProductName = %q", snap.MostVolatileProductName)
	}
	if len(snap.TopStable) != 2 || snap.TopStable[0].Name != "Gadget" {
		t.Errorf("TopStable = %v", snap.TopStable)
	}
}

type flakyReader struct {
	products.Store
	missing products.ProductID
	fail    error
}

func (r flakyReader) History(ctx context.Context, id products.ProductID) ([]products.PriceRecord, error) {
	if id == r.missing {
		return nil, products.ErrNotFound
	}
	if r.fail != nil {
		return nil, r.fail
	}
	return r.Store.History(ctx, id)
}

func TestEngineSnapshotSkipsDeletedProducts(t *testing.T) {
	ctx := context.Background()
	store := products.NewMemoryStore()
	gone, _ := store.AddProduct(ctx, "Gone", 1)
	_, _ = store.AddProduct(ctx, "Kept", 1)

	snap, err := NewEngine(flakyReader{Store: store, missing: gone}).Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.TotalProducts != 1 {
		t.Errorf("TotalProducts = %d, want 1", snap.TotalProducts)
	}
}

func TestEngineSnapshotPropagatesStorageErrors(t *testing.T) {
	ctx := context.Background()
	store := products.NewMemoryStore()
	_, _ = store.AddProduct(ctx, "Widget", 1)

	_, err := NewEngine(flakyReader{Store: store, fail: products.ErrStorage}).Snapshot(ctx)
	if !errors.Is(err, products.ErrStorage) {
		t.Errorf("error = %v, want ErrStorage", err)
	}
}

func TestEngineSnapshotDuringWrites(t *testing.T) {
	ctx := context.Background()
	store := products.NewMemoryStore()
	var ids []products.ProductID
	for _, n := range []string{"a", "b", "c", "d"} {
		id, _ := store.AddProduct(ctx, n, 100)
		ids = append(ids, id)
	}

	const perProduct = 200
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id products.ProductID) {
			defer wg.Done()
			for i := 0; i < perProduct; i++ {
				_, err := store.Advance(ctx, id, func(latest float64, _ time.Time) (float64, time.Time) {
					return latest, time.Now()
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}(id)
	}

	e := NewEngine(store)
	for i := 0; i < 20; i++ {
		snap, err := e.Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}
		if n := len(snap.CombinedSeries.Prices); n > perProduct*len(ids) {
			t.Fatalf("combined series has %d points, more than written", n)
		}
	}
	wg.Wait()

	snap, _ := e.Snapshot(ctx)
	if n := len(snap.CombinedSeries.Prices); n != perProduct*len(ids) {
		t.Errorf("final combined series has %d points, want %d", n, perProduct*len(ids))
	}
}

func mustAppend(t *testing.T, s products.Store, id products.ProductID, price float64, at time.Time) {
	t.Helper()
	if _, err := s.AppendPrice(context.Background(), id, price, at); err != nil {
		t.Fatalf("AppendPrice: %v", err)
	}
}

func equalRanked(a, b []Ranked) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
