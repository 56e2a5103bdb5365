// Package seed fills a fresh database with the admin account and the
// default catalog.
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukerupert/shoplist/internal/auth"
	"github.com/dukerupert/shoplist/internal/database"
	"github.com/dukerupert/shoplist/internal/model"
	"github.com/dukerupert/shoplist/internal/store"
)

// DefaultCategories are created, in order, when the catalog is empty.
var DefaultCategories = []string{
	"Fruits", "Vegetables", "Dairy", "Meat", "Bakery",
	"Beverages", "Snacks", "Frozen Foods", "Condiments", "Seafood",
	"Grains", "Spices", "Nuts", "Legumes", "Herbs",
}

// DefaultProducts maps each default product to its category.
var DefaultProducts = []struct {
	Name     string
	Category string
}{
	{"Apple", "Fruits"}, {"Banana", "Fruits"},
	{"Carrot", "Vegetables"}, {"Broccoli", "Vegetables"},
	{"Milk", "Dairy"}, {"Cheese", "Dairy"},
	{"Chicken", "Meat"}, {"Venison", "Meat"},
	{"Bread", "Bakery"}, {"Kalakukko", "Bakery"},
	{"Coffee", "Beverages"}, {"Water", "Beverages"},
	{"Chips", "Snacks"}, {"Pretzels", "Snacks"},
	{"Ice Cream", "Frozen Foods"},
	{"Ketchup", "Condiments"}, {"Guacamole", "Condiments"},
	{"Salmon", "Seafood"}, {"Herring", "Seafood"},
	{"Rice", "Grains"}, {"Bulgur", "Grains"},
	{"Cinnamon", "Spices"}, {"Cardamom", "Spices"},
}

type Options struct {
	AdminUsername string
	// AdminPassword empty skips the admin account.
	AdminPassword string
	Catalog       bool
}

// Run applies the seed. Each part is skipped when its data already
// exists, so Run is safe on every start.
func Run(ctx context.Context, db *sql.DB, opts Options, logger *slog.Logger) error {
	logger = logger.With("component", "seed")

	if opts.AdminPassword != "" {
		if err := seedAdmin(ctx, store.NewUserStore(db), opts.AdminUsername, opts.AdminPassword, logger); err != nil {
			return err
		}
	}
	if opts.Catalog {
		if err := seedCatalog(ctx, db, logger); err != nil {
			return err
		}
	}
	return nil
}

func seedAdmin(ctx context.Context, users *store.UserStore, username, password string, logger *slog.Logger) error {
	existing, err := users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	u, err := users.Create(ctx, username, hash, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	logger.Info("admin user created", "username", u.Username)
	return nil
}

func seedCatalog(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	return database.WithTx(ctx, db, func(tx *sql.Tx) error {
		catalog := store.NewCatalogStore(tx)

		n, err := catalog.CountCategories(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		ids := make(map[string]int64, len(DefaultCategories))
		for _, name := range DefaultCategories {
			c, err := catalog.CreateCategory(ctx, name)
			if err != nil {
				return fmt.Errorf("seed category %q: %w", name, err)
			}
			ids[name] = c.ID
		}
		for _, p := range DefaultProducts {
			if _, err := catalog.CreateProduct(ctx, p.Name, ids[p.Category]); err != nil {
				return fmt.Errorf("seed product %q: %w", p.Name, err)
			}
		}

		logger.Info("default catalog created", "categories", len(DefaultCategories), "products", len(DefaultProducts))
		return nil
	})
}
