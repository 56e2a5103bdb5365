// Package catalog manages the shared categories and products. Every
// write is admin only, and product renames and deletes are carried into
// all shopping lists in the same transaction.
package catalog

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/dukerupert/shoplist/internal/apperr"
	"github.com/dukerupert/shoplist/internal/auth"
	"github.com/dukerupert/shoplist/internal/database"
	"github.com/dukerupert/shoplist/internal/itemcodec"
	"github.com/dukerupert/shoplist/internal/metrics"
	"github.com/dukerupert/shoplist/internal/model"
	"github.com/dukerupert/shoplist/internal/propagation"
	"github.com/dukerupert/shoplist/internal/store"
	"github.com/dukerupert/shoplist/internal/websocket"
)

// Notifier delivers change events. *websocket.Hub satisfies it.
type Notifier interface {
	Broadcast(msg websocket.Message)
	SendToUser(userName string, msg websocket.Message)
}

type Service struct {
	db       *sql.DB
	catalog  *store.CatalogStore
	lists    *store.ShoppingListStore
	engine   *propagation.Engine
	policy   auth.Policy
	notifier Notifier
	metrics  *metrics.Metrics
	retries  uint64
	logger   *slog.Logger

	// onConflict runs after a stale attempt has been rolled back and
	// before the next one.
	onConflict func(error)
}

func NewService(db *sql.DB, engine *propagation.Engine, policy auth.Policy, notifier Notifier, m *metrics.Metrics, retries uint64, logger *slog.Logger) *Service {
	s := &Service{
		db:       db,
		catalog:  store.NewCatalogStore(db),
		lists:    store.NewShoppingListStore(db),
		engine:   engine,
		policy:   policy,
		notifier: notifier,
		metrics:  m,
		retries:  retries,
		logger:   logger.With("component", "catalog"),
	}
	s.onConflict = s.recordConflict
	return s
}

// ProductInput is a create or update request. A nil CategoryID on create
// asks for a suggested category.
type ProductInput struct {
	Name       string
	CategoryID *int64
}

func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.catalog.ListCategories(ctx)
}

// GetCategory returns the category with its products.
func (s *Service) GetCategory(ctx context.Context, id int64) (*model.CategoryDetail, error) {
	c, err := s.catalog.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperr.NotFoundf("category %d not found", id)
	}
	products, err := s.catalog.ListProductsByCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.CategoryDetail{Category: *c, Products: products}, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.catalog.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := s.catalog.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFoundf("product %d not found", id)
	}
	return p, nil
}

func (s *Service) CreateCategory(ctx context.Context, who auth.Identity, name string) (*model.Category, error) {
	if err := s.requireAdmin(who); err != nil {
		return nil, err
	}
	name, err := categoryName(name)
	if err != nil {
		return nil, err
	}

	var c *model.Category
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		cat := s.catalog.WithTx(tx)
		if err := checkCategoryName(ctx, cat, name, 0); err != nil {
			return err
		}
		var err error
		c, err = cat.CreateCategory(ctx, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("category created", "category_id", c.ID, "name", c.Name, "by", who.UserName)
	s.notifier.Broadcast(websocket.NewMessage("category", "created", c.ID, map[string]any{"name": c.Name}))
	return c, nil
}

// RenameCategory changes a category name. Lists hold product names only,
// so nothing is propagated.
func (s *Service) RenameCategory(ctx context.Context, who auth.Identity, id int64, name string) (*model.Category, error) {
	if err := s.requireAdmin(who); err != nil {
		return nil, err
	}
	name, err := categoryName(name)
	if err != nil {
		return nil, err
	}

	var c *model.Category
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		cat := s.catalog.WithTx(tx)
		existing, err := cat.GetCategory(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperr.NotFoundf("category %d not found", id)
		}
		if err := checkCategoryName(ctx, cat, name, id); err != nil {
			return err
		}
		c, err = cat.RenameCategory(ctx, id, name)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("category renamed", "category_id", id, "name", c.Name, "by", who.UserName)
	s.notifier.Broadcast(websocket.NewMessage("category", "updated", id, map[string]any{"name": c.Name}))
	return c, nil
}

// DeleteCategory removes a category, all of its products, and every item
// naming one of those products from every shopping list. It returns the
// removed product names.
func (s *Service) DeleteCategory(ctx context.Context, who auth.Identity, id int64) ([]string, error) {
	if err := s.requireAdmin(who); err != nil {
		return nil, err
	}

	var (
		names []string
		res   propagation.Result
	)
	err := s.withRetry(ctx, func(tx *sql.Tx) error {
		cat := s.catalog.WithTx(tx)
		c, err := cat.GetCategory(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.NotFoundf("category %d not found", id)
		}

		products, err := cat.ListProductsByCategory(ctx, id)
		if err != nil {
			return err
		}
		names = make([]string, len(products))
		for i, p := range products {
			names[i] = p.Name
		}

		if _, err := cat.DeleteProductsByCategory(ctx, id); err != nil {
			return err
		}
		res, err = s.engine.RemoveProducts(ctx, s.lists.WithTx(tx), names)
		if err != nil {
			return err
		}
		return cat.DeleteCategory(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("category deleted", "category_id", id, "products", len(names), "lists_rewritten", len(res.Rewritten), "by", who.UserName)
	s.notifier.Broadcast(websocket.NewMessage("category", "deleted", id, map[string]any{"products": names}))
	s.notifyLists(res)
	return names, nil
}

// CreateProduct adds a product. Without a category id the category is
// suggested from the product name and must already exist.
func (s *Service) CreateProduct(ctx context.Context, who auth.Identity, in ProductInput) (*model.Product, error) {
	if err := s.requireAdmin(who); err != nil {
		return nil, err
	}
	name, err := productName(in.Name)
	if err != nil {
		return nil, err
	}

	var p *model.Product
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		cat := s.catalog.WithTx(tx)
		categoryID, err := s.resolveCategory(ctx, cat, name, in.CategoryID)
		if err != nil {
			return err
		}
		if err := checkProductName(ctx, cat, name, 0); err != nil {
			return err
		}
		p, err = cat.CreateProduct(ctx, name, categoryID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("product created", "product_id", p.ID, "name", p.Name, "category", p.CategoryName, "by", who.UserName)
	s.notifier.Broadcast(websocket.NewMessage("product", "created", p.ID, map[string]any{"name": p.Name, "category_id": p.CategoryID}))
	return p, nil
}

// UpdateProduct renames and moves a product in one step. A nil
// CategoryID keeps the current category.
func (s *Service) UpdateProduct(ctx context.Context, who auth.Identity, id int64, in ProductInput) (*model.Product, error) {
	if err := s.requireAdmin(who); err != nil {
		return nil, err
	}
	name, err := productName(in.Name)
	if err != nil {
		return nil, err
	}
	return s.updateProduct(ctx, who, id, func(*model.Product) (string, *int64) {
		return name, in.CategoryID
	})
}

// RenameProduct renames a product and every list item carrying its old
// name, keeping acquired state. It returns the old name.
func (s *Service) RenameProduct(ctx context.Context, who auth.Identity, id int64, name string) (string, error) {
	if err := s.requireAdmin(who); err != nil {
		return "", err
	}
	name, err := productName(name)
	if err != nil {
		return "", err
	}
	var oldName string
	_, err = s.updateProduct(ctx, who, id, func(p *model.Product) (string, *int64) {
		oldName = p.Name
		return name, nil
	})
	if err != nil {
		return "", err
	}
	return oldName, nil
}

// MoveProduct assigns a product to another category.
func (s *Service) MoveProduct(ctx context.Context, who auth.Identity, id, categoryID int64) (*model.Product, error) {
	if err := s.requireAdmin(who); err != nil {
		return nil, err
	}
	return s.updateProduct(ctx, who, id, func(p *model.Product) (string, *int64) {
		return p.Name, &categoryID
	})
}

// updateProduct applies the name and category chosen by next to product
// id and propagates a name change to every list.
func (s *Service) updateProduct(ctx context.Context, who auth.Identity, id int64, next func(*model.Product) (string, *int64)) (*model.Product, error) {
	var (
		updated *model.Product
		oldName string
		res     propagation.Result
	)
	err := s.withRetry(ctx, func(tx *sql.Tx) error {
		cat := s.catalog.WithTx(tx)
		p, err := cat.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return apperr.NotFoundf("product %d not found", id)
		}
		oldName = p.Name

		name, categoryID := next(p)
		target := p.CategoryID
		if categoryID != nil {
			c, err := cat.GetCategory(ctx, *categoryID)
			if err != nil {
				return err
			}
			if c == nil {
				return apperr.NotFoundf("category %d not found", *categoryID)
			}
			target = c.ID
		}
		if err := checkProductName(ctx, cat, name, id); err != nil {
			return err
		}

		updated, err = cat.UpdateProduct(ctx, id, name, target)
		if err != nil {
			return err
		}

		res = propagation.Result{}
		if updated.Name != oldName {
			res, err = s.engine.RenameProduct(ctx, s.lists.WithTx(tx), oldName, updated.Name)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("product updated", "product_id", id, "old_name", oldName, "name", updated.Name, "category_id", updated.CategoryID, "lists_rewritten", len(res.Rewritten), "by", who.UserName)
	if updated.Name != oldName {
		s.notifier.Broadcast(websocket.NewMessage("product", "renamed", id, map[string]any{"old_name": oldName, "name": updated.Name}))
	} else {
		s.notifier.Broadcast(websocket.NewMessage("product", "updated", id, map[string]any{"category_id": updated.CategoryID}))
	}
	s.notifyLists(res)
	return updated, nil
}

// DeleteProduct removes a product and every list item naming it. It
// returns the removed name.
func (s *Service) DeleteProduct(ctx context.Context, who auth.Identity, id int64) (string, error) {
	if err := s.requireAdmin(who); err != nil {
		return "", err
	}

	var (
		name string
		res  propagation.Result
	)
	err := s.withRetry(ctx, func(tx *sql.Tx) error {
		cat := s.catalog.WithTx(tx)
		p, err := cat.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return apperr.NotFoundf("product %d not found", id)
		}
		name = p.Name

		if err := cat.DeleteProduct(ctx, id); err != nil {
			return err
		}
		res, err = s.engine.RemoveProducts(ctx, s.lists.WithTx(tx), []string{name})
		return err
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("product deleted", "product_id", id, "name", name, "lists_rewritten", len(res.Rewritten), "by", who.UserName)
	s.notifier.Broadcast(websocket.NewMessage("product", "deleted", id, map[string]any{"name": name}))
	s.notifyLists(res)
	return name, nil
}

// SuggestCategory returns the existing category suggested for a product
// name, or nil.
func (s *Service) SuggestCategory(ctx context.Context, productName string) (*model.Category, error) {
	return suggestExisting(ctx, s.catalog, productName)
}

func (s *Service) resolveCategory(ctx context.Context, cat *store.CatalogStore, name string, categoryID *int64) (int64, error) {
	if categoryID != nil {
		c, err := cat.GetCategory(ctx, *categoryID)
		if err != nil {
			return 0, err
		}
		if c == nil {
			return 0, apperr.NotFoundf("category %d not found", *categoryID)
		}
		return c.ID, nil
	}

	c, err := suggestExisting(ctx, cat, name)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, apperr.Validationf("no category could be suggested for %q; category_id is required", name)
	}
	s.logger.Debug("category suggested", "product", name, "category", c.Name)
	return c.ID, nil
}

func suggestExisting(ctx context.Context, cat *store.CatalogStore, productName string) (*model.Category, error) {
	suggested := Suggest(productName)
	if suggested == "" {
		return nil, nil
	}
	return cat.GetCategoryByName(ctx, suggested)
}

// withRetry runs fn in a transaction, starting over from a fresh
// transaction when a list save loses an optimistic concurrency race.
func (s *Service) withRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return store.RetryOnConflict(ctx, s.retries, s.onConflict, func(ctx context.Context) error {
		return database.WithTx(ctx, s.db, fn)
	})
}

func (s *Service) recordConflict(err error) {
	s.metrics.ObserveConflict("catalog")
	s.logger.Warn("shopping list changed during propagation, retrying", "error", err)
}

func (s *Service) notifyLists(res propagation.Result) {
	for _, l := range res.Rewritten {
		s.notifier.SendToUser(l.OwnerUserName, websocket.NewMessage("shopping_list", "updated", l.ID, map[string]any{
			"version": l.Version,
		}))
	}
}

func (s *Service) requireAdmin(who auth.Identity) error {
	if !s.policy.IsAdmin(who) {
		return apperr.Forbiddenf("catalog changes require the admin role")
	}
	return nil
}

func categoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.Validationf("category name is required")
	}
	return name, nil
}

// productName trims name and rejects names that would not survive the
// legacy item encoding.
func productName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if err := itemcodec.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

func checkCategoryName(ctx context.Context, cat *store.CatalogStore, name string, excludeID int64) error {
	taken, err := cat.CategoryNameTaken(ctx, name, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflictf("a category named %q already exists", name)
	}
	return nil
}

func checkProductName(ctx context.Context, cat *store.CatalogStore, name string, excludeID int64) error {
	taken, err := cat.ProductNameTaken(ctx, name, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflictf("a product named %q already exists", name)
	}
	return nil
}
