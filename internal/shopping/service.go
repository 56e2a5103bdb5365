// Package shopping implements per-user shopping lists: the item
// mutations on a single list and the list lifecycle around them.
package shopping

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
	"github.com/dukerupert/shoplist/internal/store"
	"github.com/dukerupert/shoplist/internal/websocket"
)

const entity = "shopping_list"

// Notifier delivers change events. *websocket.Hub satisfies it.
type Notifier interface {
	SendToUser(userName string, msg websocket.Message)
}

type Service struct {
	db       *sql.DB
	lists    *store.ShoppingListStore
	catalog  *store.CatalogStore
	policy   auth.Policy
	notifier Notifier
	metrics  *metrics.Metrics
	retries  uint64
	logger   *slog.Logger

	// onConflict runs after a stale save has been rolled back and before
	// the next attempt.
	onConflict func(error)
}

func NewService(db *sql.DB, policy auth.Policy, notifier Notifier, m *metrics.Metrics, retries uint64, logger *slog.Logger) *Service {
	s := &Service{
		db:       db,
		lists:    store.NewShoppingListStore(db),
		catalog:  store.NewCatalogStore(db),
		policy:   policy,
		notifier: notifier,
		metrics:  m,
		retries:  retries,
		logger:   logger.With("component", "shopping"),
	}
	s.onConflict = s.recordConflict
	return s
}

// ListMine returns the caller's lists.
func (s *Service) ListMine(ctx context.Context, who auth.Identity) ([]model.ShoppingList, error) {
	if who.UserName == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	return s.lists.ListByOwner(ctx, who.UserName)
}

// Get returns a list the caller owns.
func (s *Service) Get(ctx context.Context, who auth.Identity, id int64) (*model.ShoppingList, error) {
	return s.authorize(ctx, s.lists, who, id)
}

// Create makes a new list owned by the caller holding the names of the
// selected products, in the order given. Unknown and repeated ids are
// skipped.
func (s *Service) Create(ctx context.Context, who auth.Identity, name string, productIDs []int64) (*model.ShoppingList, error) {
	if who.UserName == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validationf("list name is required")
	}

	var list *model.ShoppingList
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		products, err := s.catalog.WithTx(tx).ListProductsByIDs(ctx, productIDs)
		if err != nil {
			return err
		}
		byID := make(map[int64]string, len(products))
		for _, p := range products {
			byID[p.ID] = p.Name
		}

		var items []model.Item
		for _, id := range productIDs {
			if n, ok := byID[id]; ok {
				items, _ = AddItem(items, n)
			}
		}

		list, err = s.lists.WithTx(tx).Create(ctx, who.UserName, name, items)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("shopping list created", "list_id", list.ID, "owner", list.OwnerUserName, "items", len(list.Items))
	s.notifyUpdated(list)
	return list, nil
}

// Import creates a list from item strings in the legacy encoded form.
// Repeated product names keep their first occurrence.
func (s *Service) Import(ctx context.Context, who auth.Identity, name string, entries []string) (*model.ShoppingList, error) {
	if who.UserName == "" {
		return nil, apperr.Unauthorized("authentication required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validationf("list name is required")
	}

	items := itemcodec.DecodeAll(entries)
	for _, it := range items {
		if err := itemcodec.ValidateName(it.ProductName); err != nil {
			return nil, err
		}
	}
	items = itemcodec.Normalize(items)

	var list *model.ShoppingList
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		list, err = s.lists.WithTx(tx).Create(ctx, who.UserName, name, items)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("shopping list imported", "list_id", list.ID, "owner", list.OwnerUserName, "entries", len(entries), "items", len(list.Items))
	s.notifyUpdated(list)
	return list, nil
}

// Export returns the list together with its items in the legacy encoded
// form, both taken from the same read.
func (s *Service) Export(ctx context.Context, who auth.Identity, id int64) (*model.ShoppingList, []string, error) {
	list, err := s.Get(ctx, who, id)
	if err != nil {
		return nil, nil, err
	}
	return list, itemcodec.EncodeAll(list.Items), nil
}

// Rename changes the list name. Items are untouched.
func (s *Service) Rename(ctx context.Context, who auth.Identity, id int64, name string) (*model.ShoppingList, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validationf("list name is required")
	}
	return s.mutate(ctx, who, id, "rename", func(list *model.ShoppingList) bool {
		if list.Name == name {
			return false
		}
		list.Name = name
		return true
	})
}

func (s *Service) Delete(ctx context.Context, who auth.Identity, id int64) error {
	var owner string
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		lists := s.lists.WithTx(tx)
		list, err := s.authorize(ctx, lists, who, id)
		if err != nil {
			return err
		}
		owner = list.OwnerUserName
		return lists.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("shopping list deleted", "list_id", id, "owner", owner)
	s.notifier.SendToUser(owner, websocket.NewMessage(entity, "deleted", id, nil))
	return nil
}

// AddItem appends name to the list unless it is already there.
func (s *Service) AddItem(ctx context.Context, who auth.Identity, id int64, name string) (*model.ShoppingList, error) {
	name = strings.TrimSpace(name)
	if err := itemcodec.ValidateName(name); err != nil {
		return nil, err
	}
	return s.mutateItems(ctx, who, id, "add", func(items []model.Item) ([]model.Item, bool) {
		return AddItem(items, name)
	})
}

func (s *Service) RemoveItem(ctx context.Context, who auth.Identity, id int64, name string) (*model.ShoppingList, error) {
	name = strings.TrimSpace(name)
	return s.mutateItems(ctx, who, id, "remove", func(items []model.Item) ([]model.Item, bool) {
		return RemoveItem(items, name)
	})
}

func (s *Service) SetAcquired(ctx context.Context, who auth.Identity, id int64, name string, acquired bool) (*model.ShoppingList, error) {
	name = strings.TrimSpace(name)
	return s.mutateItems(ctx, who, id, "set_acquired", func(items []model.Item) ([]model.Item, bool) {
		return SetAcquired(items, name, acquired)
	})
}

func (s *Service) mutateItems(ctx context.Context, who auth.Identity, id int64, op string, fn func([]model.Item) ([]model.Item, bool)) (*model.ShoppingList, error) {
	return s.mutate(ctx, who, id, op, func(list *model.ShoppingList) bool {
		items, changed := fn(list.Items)
		if changed {
			list.Items = items
		}
		return changed
	})
}

// mutate loads the list, checks ownership, applies fn and saves the
// result when fn reports a change. Stale saves are retried from a fresh
// load.
func (s *Service) mutate(ctx context.Context, who auth.Identity, id int64, op string, fn func(*model.ShoppingList) bool) (*model.ShoppingList, error) {
	var (
		result  *model.ShoppingList
		changed bool
	)
	err := store.RetryOnConflict(ctx, s.retries, s.onConflict, func(ctx context.Context) error {
		return database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			lists := s.lists.WithTx(tx)
			list, err := s.authorize(ctx, lists, who, id)
			if err != nil {
				return err
			}
			changed = fn(list)
			if changed {
				if err := lists.Save(ctx, list); err != nil {
					return err
				}
			}
			result = list
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveListMutation(op, changed)
	if changed {
		s.logger.Debug("shopping list updated", "list_id", id, "op", op, "version", result.Version)
		s.notifyUpdated(result)
	}
	return result, nil
}

// authorize loads list id and returns it only if who owns it.
func (s *Service) authorize(ctx context.Context, lists *store.ShoppingListStore, who auth.Identity, id int64) (*model.ShoppingList, error) {
	list, err := lists.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if list == nil {
		return nil, apperr.NotFoundf("shopping list %d not found", id)
	}
	if !s.policy.IsOwner(who, list) {
		return nil, apperr.Forbiddenf("shopping list %d belongs to another user", id)
	}
	return list, nil
}

func (s *Service) recordConflict(err error) {
	s.metrics.ObserveConflict("shopping")
	s.logger.Warn("shopping list changed concurrently, retrying", "error", err)
}

func (s *Service) notifyUpdated(list *model.ShoppingList) {
	s.notifier.SendToUser(list.OwnerUserName, websocket.NewMessage(entity, "updated", list.ID, map[string]any{
		"version": list.Version,
	}))
}
