package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/shoplist/internal/apperr"
	"github.com/dukerupert/shoplist/internal/model"
)

type CatalogStore struct {
	db DBTX
}

func NewCatalogStore(db DBTX) *CatalogStore {
	return &CatalogStore{db: db}
}

// WithTx returns a CatalogStore bound to tx.
func (s *CatalogStore) WithTx(tx *sql.Tx) *CatalogStore {
	return &CatalogStore{db: tx}
}

// --- Category methods ---

func scanCategory(scanner interface{ Scan(...any) error }) (*model.Category, error) {
	var c model.Category
	err := scanner.Scan(&c.ID, &c.Name, &c.ProductCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const categoryCols = `c.id, c.name, (SELECT COUNT(*) FROM products p WHERE p.category_id = c.id), c.created_at, c.updated_at`

func (s *CatalogStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryCols+` FROM categories c ORDER BY c.name_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, *c)
	}
	return categories, rows.Err()
}

func (s *CatalogStore) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryCols+` FROM categories c WHERE c.id = ?`, id)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (s *CatalogStore) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryCols+` FROM categories c WHERE c.name_key = ?`, NameKey(name))
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category by name: %w", err)
	}
	return c, nil
}

// CategoryNameTaken reports whether another category (id != excludeID)
// already uses name, ignoring case.
func (s *CatalogStore) CategoryNameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categories WHERE name_key = ? AND id != ?`,
		NameKey(name), excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check category name: %w", err)
	}
	return count > 0, nil
}

func (s *CatalogStore) CreateCategory(ctx context.Context, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (name, name_key) VALUES (?, ?)`,
		name, NameKey(name),
	)
	if isUniqueViolation(err) {
		return nil, apperr.Conflictf("a category named %q already exists", name).WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetCategory(ctx, id)
}

func (s *CatalogStore) RenameCategory(ctx context.Context, id int64, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	_, err := s.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, name_key = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, NameKey(name), id,
	)
	if isUniqueViolation(err) {
		return nil, apperr.Conflictf("a category named %q already exists", name).WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("rename category: %w", err)
	}
	return s.GetCategory(ctx, id)
}

func (s *CatalogStore) DeleteCategory(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return nil
}

func (s *CatalogStore) CountCategories(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return count, nil
}

// --- Product methods ---

func scanProduct(scanner interface{ Scan(...any) error }) (*model.Product, error) {
	var p model.Product
	err := scanner.Scan(&p.ID, &p.Name, &p.CategoryID, &p.CategoryName, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const productCols = `p.id, p.name, p.category_id, c.name, p.created_at, p.updated_at`
const productFrom = ` FROM products p JOIN categories c ON c.id = p.category_id`

func (s *CatalogStore) queryProducts(ctx context.Context, query string, args ...any) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (s *CatalogStore) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productCols+productFrom+` ORDER BY p.name_key ASC`)
}

func (s *CatalogStore) ListProductsByCategory(ctx context.Context, categoryID int64) ([]model.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productCols+productFrom+` WHERE p.category_id = ? ORDER BY p.name_key ASC`,
		categoryID,
	)
}

// ListProductsByIDs returns the products whose ids are in ids, ordered by
// name. Unknown ids are skipped.
func (s *CatalogStore) ListProductsByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.queryProducts(ctx,
		`SELECT `+productCols+productFrom+` WHERE p.id IN (`+placeholders+`) ORDER BY p.name_key ASC`,
		args...,
	)
}

func (s *CatalogStore) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productCols+productFrom+` WHERE p.id = ?`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// ProductNameTaken reports whether another product (id != excludeID)
// already uses name anywhere in the catalog, ignoring case.
func (s *CatalogStore) ProductNameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM products WHERE name_key = ? AND id != ?`,
		NameKey(name), excludeID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check product name: %w", err)
	}
	return count > 0, nil
}

func (s *CatalogStore) CreateProduct(ctx context.Context, name string, categoryID int64) (*model.Product, error) {
	name = strings.TrimSpace(name)
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO products (name, name_key, category_id) VALUES (?, ?, ?)`,
		name, NameKey(name), categoryID,
	)
	if isUniqueViolation(err) {
		return nil, apperr.Conflictf("a product named %q already exists", name).WithCause(err)
	}
	if isForeignKeyViolation(err) {
		return nil, apperr.NotFoundf("category %d not found", categoryID).WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetProduct(ctx, id)
}

// UpdateProduct sets both the name and the owning category of a product.
func (s *CatalogStore) UpdateProduct(ctx context.Context, id int64, name string, categoryID int64) (*model.Product, error) {
	name = strings.TrimSpace(name)
	_, err := s.db.ExecContext(ctx,
		`UPDATE products SET name = ?, name_key = ?, category_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		name, NameKey(name), categoryID, id,
	)
	if isUniqueViolation(err) {
		return nil, apperr.Conflictf("a product named %q already exists", name).WithCause(err)
	}
	if isForeignKeyViolation(err) {
		return nil, apperr.NotFoundf("category %d not found", categoryID).WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	return s.GetProduct(ctx, id)
}

func (s *CatalogStore) DeleteProduct(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

// DeleteProductsByCategory removes every product owned by categoryID.
func (s *CatalogStore) DeleteProductsByCategory(ctx context.Context, categoryID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE category_id = ?`, categoryID)
	if err != nil {
		return 0, fmt.Errorf("delete products by category: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
