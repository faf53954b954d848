package products

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// runStoreContract checks the behaviour every Store implementation shares.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("AddProductValidation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		cases := []struct {
			name  string
			price float64
		}{
			{"", 10},
			{"   ", 10},
			{"Widget", 0},
			{"Widget", -3},
			{"Widget", 0.001},
		}
		for _, c := range cases {
			if _, err := s.AddProduct(ctx, c.name, c.price); !errors.Is(err, ErrValidation) {
				t.Errorf("AddProduct(%q, %v) error = %v, want ErrValidation", c.name, c.price, err)
			}
		}
	})

	t.Run("LatestPriceFallsBackToInitial", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := mustAdd(t, s, "Widget", 100)

		got, err := s.LatestPrice(ctx, id)
		if err != nil {
			t.Fatalf("LatestPrice: %v", err)
		}
		if got != 100 {
			t.Errorf("LatestPrice = %v, want 100", got)
		}
		hist, err := s.History(ctx, id)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if hist == nil || len(hist) != 0 {
			t.Errorf("History = %#v, want empty slice", hist)
		}
	})

	t.Run("AppendAndHistory", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := mustAdd(t, s, "Widget", 100)
		base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

		prices := []float64{101.5, 99.25, 99.25}
		for i, p := range prices {
			if _, err := s.AppendPrice(ctx, id, p, base.Add(time.Duration(i)*time.Second)); err != nil {
				t.Fatalf("AppendPrice(%v): %v", p, err)
			}
		}
		hist, err := s.History(ctx, id)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(hist) != len(prices) {
			t.Fatalf("len(History) = %d, want %d", len(hist), len(prices))
		}
		for i, rec := range hist {
			if rec.Price != prices[i] || rec.ProductID != id {
				t.Errorf("record %d = %+v, want price %v", i, rec, prices[i])
			}
			if i > 0 && rec.RecordedAt.Before(hist[i-1].RecordedAt) {
				t.Errorf("record %d out of order", i)
			}
		}
		latest, err := s.LatestPrice(ctx, id)
		if err != nil || latest != 99.25 {
			t.Errorf("LatestPrice = %v, %v; want 99.25", latest, err)
		}
	})

	t.Run("AppendRejectsBadRecords", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := mustAdd(t, s, "Widget", 5)
		at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

		if _, err := s.AppendPrice(ctx, id, 0.99, at); !errors.Is(err, ErrValidation) {
			t.Errorf("price below floor: error = %v, want ErrValidation", err)
		}
		if _, err := s.AppendPrice(ctx, id, 5, at); err != nil {
			t.Fatalf("AppendPrice: %v", err)
		}
		if _, err := s.AppendPrice(ctx, id, 5, at.Add(-time.Second)); !errors.Is(err, ErrValidation) {
			t.Errorf("out of order: error = %v, want ErrValidation", err)
		}
		if _, err := s.AppendPrice(ctx, 9999, 5, at); !errors.Is(err, ErrNotFound) {
			t.Errorf("unknown product: error = %v, want ErrNotFound", err)
		}
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := mustAdd(t, s, "Widget", 100)
		keep := mustAdd(t, s, "Gadget", 50)
		at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		for _, pid := range []ProductID{id, keep} {
			if _, err := s.AppendPrice(ctx, pid, 42, at); err != nil {
				t.Fatalf("AppendPrice: %v", err)
			}
		}

		if err := s.DeleteProduct(ctx, id); err != nil {
			t.Fatalf("DeleteProduct: %v", err)
		}
		if _, err := s.History(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("History after delete: error = %v, want ErrNotFound", err)
		}
		if _, err := s.LatestPrice(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("LatestPrice after delete: error = %v, want ErrNotFound", err)
		}
		if _, err := s.GetProduct(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetProduct after delete: error = %v, want ErrNotFound", err)
		}
		if _, err := s.AppendPrice(ctx, id, 42, at.Add(time.Second)); !errors.Is(err, ErrNotFound) {
			t.Errorf("AppendPrice after delete: error = %v, want ErrNotFound", err)
		}
		if err := s.DeleteProduct(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("second DeleteProduct: error = %v, want ErrNotFound", err)
		}

		hist, err := s.History(ctx, keep)
		if err != nil || len(hist) != 1 {
			t.Errorf("untouched product history = %v, %v; want one record", hist, err)
		}
		list, err := s.ListProducts(ctx)
		if err != nil {
			t.Fatalf("ListProducts: %v", err)
		}
		if len(list) != 1 || list[0].ID != keep {
			t.Errorf("ListProducts = %+v, want only %d", list, keep)
		}
	})

	t.Run("ListProductsStableOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		names := []string{"Widget", "Gadget", "Doohickey"}
		for _, n := range names {
			mustAdd(t, s, n, 10)
		}
		first, err := s.ListProducts(ctx)
		if err != nil {
			t.Fatalf("ListProducts: %v", err)
		}
		second, _ := s.ListProducts(ctx)
		if len(first) != len(names) || len(second) != len(names) {
			t.Fatalf("ListProducts len = %d/%d, want %d", len(first), len(second), len(names))
		}
		for i := range first {
			if first[i].ID != second[i].ID {
				t.Errorf("order differs at %d: %d != %d", i, first[i].ID, second[i].ID)
			}
		}
	})

	t.Run("AdvanceSerializesSameProduct", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := mustAdd(t, s, "Widget", 100)
		const n = 50

		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Advance(ctx, id, func(latest float64, _ time.Time) (float64, time.Time) {
					return latest + 1, time.Now()
				})
				if err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Fatalf("Advance: %v", err)
		}

		hist, err := s.History(ctx, id)
		if err != nil {
			t.Fatalf("History: %v", err)
		}
		if len(hist) != n {
			t.Fatalf("len(History) = %d, want %d", len(hist), n)
		}
		for i, rec := range hist {
			if want := 101 + float64(i); rec.Price != want {
				t.Fatalf("record %d price = %v, want %v", i, rec.Price, want)
			}
		}
	})

	t.Run("AdvanceClampsTimestamp", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		id := mustAdd(t, s, "Widget", 100)
		at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		if _, err := s.AppendPrice(ctx, id, 100, at); err != nil {
			t.Fatalf("AppendPrice: %v", err)
		}
		rec, err := s.Advance(ctx, id, func(latest float64, last time.Time) (float64, time.Time) {
			if !last.Equal(at) {
				t.Errorf("last = %v, want %v", last, at)
			}
			return latest, at.Add(-time.Hour)
		})
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if !rec.RecordedAt.Equal(at) {
			t.Errorf("RecordedAt = %v, want clamped to %v", rec.RecordedAt, at)
		}
	})

	t.Run("AdvanceUnknownProduct", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Advance(context.Background(), 12345, func(latest float64, _ time.Time) (float64, time.Time) {
			t.Error("next called for unknown product")
			return latest, time.Now()
		})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func mustAdd(t *testing.T, s Store, name string, price float64) ProductID {
	t.Helper()
	id, err := s.AddProduct(context.Background(), name, price)
	if err != nil {
		t.Fatalf("AddProduct(%q): %v", name, err)
	}
	return id
}
