package products

import "time"

// ProductID identifies a product within a store.
type ProductID int64

type Product struct {
	ID           ProductID `json:"id"`
	Name         string    `json:"name"`
	InitialPrice float64   `json:"initial_price"`
	CreatedAt    time.Time `json:"created_at"`
}

// PriceRecord is one immutable price observation.
type PriceRecord struct {
	ID         int64     `json:"id"`
	ProductID  ProductID `json:"product_id"`
	Price      float64   `json:"price"`
	RecordedAt time.Time `json:"recorded_at"`
}
