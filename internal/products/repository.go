package products

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the PostgreSQL store. The schema lives in internal/database.
//
// Per-product serialization relies on a row lock of the product taken with
// SELECT ... FOR UPDATE inside each writing transaction.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AddProduct(ctx context.Context, name string, initialPrice float64) (ProductID, error) {
	name, initialPrice, err := validateProduct(name, initialPrice)
	if err != nil {
		return 0, err
	}
	var id ProductID
	err = r.db.QueryRow(ctx,
		`INSERT INTO products (name, initial_price) VALUES ($1, $2) RETURNING id`,
		name, initialPrice).Scan(&id)
	if err != nil {
		return 0, storageErr("insert product", err)
	}
	return id, nil
}

func (r *Repository) GetProduct(ctx context.Context, id ProductID) (Product, error) {
	var p Product
	err := r.db.QueryRow(ctx, `
SELECT id, name, (initial_price::double precision), created_at
FROM products
WHERE id = $1
`, id).Scan(&p.ID, &p.Name, &p.InitialPrice, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, notFound(id)
		}
		return Product{}, storageErr("get product", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

// DeleteProduct deletes the history before the product itself, in the same
// transaction, so it does not depend on the foreign key cascade.
func (r *Repository) DeleteProduct(ctx context.Context, id ProductID) error {
	return r.inTx(ctx, "delete product", func(tx pgx.Tx) error {
		if _, err := lockProduct(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM price_history WHERE product_id = $1`, id); err != nil {
			return storageErr("delete history", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
			return storageErr("delete product", err)
		}
		return nil
	})
}

func (r *Repository) LatestPrice(ctx context.Context, id ProductID) (float64, error) {
	var (
		initial float64
		latest  *float64
	)
	err := r.db.QueryRow(ctx, `
SELECT (p.initial_price::double precision), (ph.price::double precision)
FROM products p
LEFT JOIN LATERAL (
    SELECT price FROM price_history ph2 WHERE ph2.product_id = p.id ORDER BY recorded_at DESC, id DESC LIMIT 1
) ph ON true
WHERE p.id = $1
`, id).Scan(&initial, &latest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, notFound(id)
		}
		return 0, storageErr("latest price", err)
	}
	if latest != nil {
		return *latest, nil
	}
	return initial, nil
}

func (r *Repository) AppendPrice(ctx context.Context, id ProductID, price float64, at time.Time) (PriceRecord, error) {
	var rec PriceRecord
	err := r.inTx(ctx, "append price", func(tx pgx.Tx) error {
		initial, err := lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		_, last, err := lastRecord(ctx, tx, id, initial)
		if err != nil {
			return err
		}
		rec, err = insertRecord(ctx, tx, id, price, at, last)
		return err
	})
	return rec, err
}

func (r *Repository) Advance(ctx context.Context, id ProductID, next NextFunc) (PriceRecord, error) {
	var rec PriceRecord
	err := r.inTx(ctx, "advance", func(tx pgx.Tx) error {
		initial, err := lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}
		latest, last, err := lastRecord(ctx, tx, id, initial)
		if err != nil {
			return err
		}
		price, at := next(latest, last)
		rec, err = insertRecord(ctx, tx, id, price, clampTime(at.UTC(), last), last)
		return err
	})
	return rec, err
}

func (r *Repository) History(ctx context.Context, id ProductID) ([]PriceRecord, error) {
	var out []PriceRecord
	// a repeatable-read snapshot keeps the existence check and the rows consistent
	err := r.inTxOpts(ctx, "history", pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, id).Scan(&exists); err != nil {
			return storageErr("history", err)
		}
		if !exists {
			return notFound(id)
		}

		rows, err := tx.Query(ctx, `
SELECT id, product_id, (price::double precision) AS price, recorded_at
FROM price_history
WHERE product_id = $1
ORDER BY recorded_at ASC, id ASC
`, id)
		if err != nil {
			return storageErr("history", err)
		}
		defer rows.Close()

		out = make([]PriceRecord, 0)
		for rows.Next() {
			var ph PriceRecord
			if err := rows.Scan(&ph.ID, &ph.ProductID, &ph.Price, &ph.RecordedAt); err != nil {
				return storageErr("scan history", err)
			}
			ph.RecordedAt = ph.RecordedAt.UTC()
			out = append(out, ph)
		}
		if err := rows.Err(); err != nil {
			return storageErr("history rows", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, name, (initial_price::double precision), created_at
FROM products
ORDER BY id
`)
	if err != nil {
		return nil, storageErr("list products", err)
	}
	defer rows.Close()

	res := make([]Product, 0)
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.InitialPrice, &p.CreatedAt); err != nil {
			return nil, storageErr("scan product", err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list products", err)
	}
	return res, nil
}

func (r *Repository) inTx(ctx context.Context, op string, fn func(pgx.Tx) error) error {
	return r.inTxOpts(ctx, op, pgx.TxOptions{}, fn)
}

func (r *Repository) inTxOpts(ctx context.Context, op string, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return storageErr(op+": begin", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storageErr(op+": commit", err)
	}
	return nil
}

// lockProduct takes the product row lock and returns the initial price.
func lockProduct(ctx context.Context, tx pgx.Tx, id ProductID) (float64, error) {
	var initial float64
	err := tx.QueryRow(ctx,
		`SELECT (initial_price::double precision) FROM products WHERE id = $1 FOR UPDATE`, id).Scan(&initial)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, notFound(id)
		}
		return 0, storageErr("lock product", err)
	}
	return initial, nil
}

func lastRecord(ctx context.Context, tx pgx.Tx, id ProductID, initial float64) (float64, time.Time, error) {
	var (
		price float64
		at    time.Time
	)
	err := tx.QueryRow(ctx, `
SELECT (price::double precision), recorded_at
FROM price_history
WHERE product_id = $1
ORDER BY recorded_at DESC, id DESC
LIMIT 1
`, id).Scan(&price, &at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return initial, time.Time{}, nil
		}
		return 0, time.Time{}, storageErr("last record", err)
	}
	return price, at.UTC(), nil
}

func insertRecord(ctx context.Context, tx pgx.Tx, id ProductID, price float64, at, last time.Time) (PriceRecord, error) {
	price, err := validateRecord(price, at, last)
	if err != nil {
		return PriceRecord{}, err
	}
	// timestamptz keeps microseconds
	rec := PriceRecord{ProductID: id, Price: price, RecordedAt: at.UTC().Truncate(time.Microsecond)}
	err = tx.QueryRow(ctx,
		`INSERT INTO price_history (product_id, price, recorded_at) VALUES ($1, $2, $3) RETURNING id`,
		id, price, rec.RecordedAt).Scan(&rec.ID)
	if err != nil {
		return PriceRecord{}, storageErr("insert price", err)
	}
	return rec, nil
}
