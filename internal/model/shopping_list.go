package model

import "time"

// Item is one entry of a shopping list. ProductName is a copy of the
// catalog product name taken when the item was added, not a reference.
type Item struct {
	ProductName string `json:"product_name"`
	Acquired    bool   `json:"acquired"`
}

type ShoppingList struct {
	ID            int64     `json:"id"`
	OwnerUserName string    `json:"owner_user_name"`
	Name          string    `json:"name"`
	Items         []Item    `json:"items"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
