package model

import "time"

type Category struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	ProductCount int       `json:"product_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Product struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	CategoryID   int64     `json:"category_id"`
	CategoryName string    `json:"category_name"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CategoryDetail is a category together with the products it owns.
type CategoryDetail struct {
	Category
	Products []Product `json:"products"`
}
