package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/shoplist/internal/apperr"
	"github.com/dukerupert/shoplist/internal/model"
)

type ShoppingListStore struct {
	db DBTX
}

func NewShoppingListStore(db DBTX) *ShoppingListStore {
	return &ShoppingListStore{db: db}
}

// WithTx returns a ShoppingListStore bound to tx.
func (s *ShoppingListStore) WithTx(tx *sql.Tx) *ShoppingListStore {
	return &ShoppingListStore{db: tx}
}

func scanShoppingList(scanner interface{ Scan(...any) error }) (*model.ShoppingList, error) {
	var l model.ShoppingList
	err := scanner.Scan(&l.ID, &l.OwnerUserName, &l.Name, &l.Version, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const shoppingListCols = `id, owner_user_name, name, version, created_at, updated_at`

// Create inserts a list and its items. Run it inside a transaction when
// the list must not be observed without its items.
func (s *ShoppingListStore) Create(ctx context.Context, owner, name string, items []model.Item) (*model.ShoppingList, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO shopping_lists (owner_user_name, name) VALUES (?, ?)`,
		owner, name,
	)
	if err != nil {
		return nil, fmt.Errorf("insert shopping list: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	if err := s.insertItems(ctx, id, items); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Get returns the list with its items, or nil if it does not exist.
func (s *ShoppingListStore) Get(ctx context.Context, id int64) (*model.ShoppingList, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+shoppingListCols+` FROM shopping_lists WHERE id = ?`, id)
	l, err := scanShoppingList(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shopping list: %w", err)
	}

	items, err := s.loadItems(ctx, `WHERE list_id = ?`, id)
	if err != nil {
		return nil, err
	}
	l.Items = items[id]
	return l, nil
}

func (s *ShoppingListStore) Exists(ctx context.Context, id int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM shopping_lists WHERE id = ?`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check shopping list: %w", err)
	}
	return count > 0, nil
}

// ListByOwner returns the lists owned by userName with their items.
func (s *ShoppingListStore) ListByOwner(ctx context.Context, userName string) ([]model.ShoppingList, error) {
	lists, err := s.queryLists(ctx,
		`SELECT `+shoppingListCols+` FROM shopping_lists WHERE owner_user_name = ? COLLATE NOCASE ORDER BY created_at ASC, id ASC`,
		userName,
	)
	if err != nil {
		return nil, err
	}
	items, err := s.loadItems(ctx,
		`WHERE list_id IN (SELECT id FROM shopping_lists WHERE owner_user_name = ? COLLATE NOCASE)`,
		userName,
	)
	if err != nil {
		return nil, err
	}
	for i := range lists {
		lists[i].Items = items[lists[i].ID]
	}
	return lists, nil
}

// ListAll returns every list of every user with its items.
func (s *ShoppingListStore) ListAll(ctx context.Context) ([]model.ShoppingList, error) {
	lists, err := s.queryLists(ctx, `SELECT `+shoppingListCols+` FROM shopping_lists ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	items, err := s.loadItems(ctx, ``)
	if err != nil {
		return nil, err
	}
	for i := range lists {
		lists[i].Items = items[lists[i].ID]
	}
	return lists, nil
}

// Save replaces the list's name and its whole item sequence. The write
// only applies if the stored version still equals list.Version; otherwise
// it fails with apperr.ErrConcurrentModification (or apperr.ErrNotFound if
// the list is gone). On success list.Version is advanced.
func (s *ShoppingListStore) Save(ctx context.Context, list *model.ShoppingList) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE shopping_lists SET name = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND version = ?`,
		list.Name, list.ID, list.Version,
	)
	if err != nil {
		return fmt.Errorf("update shopping list: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		exists, err := s.Exists(ctx, list.ID)
		if err != nil {
			return err
		}
		if !exists {
			return apperr.NotFoundf("shopping list %d not found", list.ID)
		}
		return apperr.ErrConcurrentModification.WithCause(fmt.Errorf("shopping list %d changed since version %d", list.ID, list.Version))
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM shopping_list_items WHERE list_id = ?`, list.ID); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	if err := s.insertItems(ctx, list.ID, list.Items); err != nil {
		return err
	}
	list.Version++
	return nil
}

func (s *ShoppingListStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM shopping_lists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete shopping list: %w", err)
	}
	return nil
}

func (s *ShoppingListStore) queryLists(ctx context.Context, query string, args ...any) ([]model.ShoppingList, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shopping lists: %w", err)
	}
	defer rows.Close()

	var lists []model.ShoppingList
	for rows.Next() {
		l, err := scanShoppingList(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shopping list: %w", err)
		}
		lists = append(lists, *l)
	}
	return lists, rows.Err()
}

// loadItems returns items grouped by list id, each group in position order.
func (s *ShoppingListStore) loadItems(ctx context.Context, where string, args ...any) (map[int64][]model.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT list_id, product_name, acquired FROM shopping_list_items `+where+` ORDER BY list_id ASC, position ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make(map[int64][]model.Item)
	for rows.Next() {
		var listID int64
		var it model.Item
		var acquired int
		if err := rows.Scan(&listID, &it.ProductName, &acquired); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Acquired = acquired != 0
		items[listID] = append(items[listID], it)
	}
	return items, rows.Err()
}

func (s *ShoppingListStore) insertItems(ctx context.Context, listID int64, items []model.Item) error {
	for i, it := range items {
		acquired := 0
		if it.Acquired {
			acquired = 1
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO shopping_list_items (list_id, position, product_name, acquired) VALUES (?, ?, ?, ?)`,
			listID, i, it.ProductName, acquired,
		)
		if isUniqueViolation(err) {
			return apperr.Conflictf("item %q appears more than once", it.ProductName).WithCause(err)
		}
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	}
	return nil
}
