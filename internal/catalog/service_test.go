package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/shoplist/internal/apperr"
	"github.com/dukerupert/shoplist/internal/auth"
	"github.com/dukerupert/shoplist/internal/database"
	"github.com/dukerupert/shoplist/internal/metrics"
	"github.com/dukerupert/shoplist/internal/model"
	"github.com/dukerupert/shoplist/internal/propagation"
	"github.com/dukerupert/shoplist/internal/store"
	"github.com/dukerupert/shoplist/internal/websocket"
)

type recorder struct {
	mu        sync.Mutex
	broadcast []websocket.Message
	direct    map[string][]websocket.Message
}

func (r *recorder) Broadcast(msg websocket.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = append(r.broadcast, msg)
}

func (r *recorder) SendToUser(userName string, msg websocket.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.direct == nil {
		r.direct = make(map[string][]websocket.Message)
	}
	r.direct[userName] = append(r.direct[userName], msg)
}

var (
	admin = auth.Identity{UserID: 1, UserName: "admin", Role: model.RoleAdmin}
	alice = auth.Identity{UserID: 2, UserName: "alice", Role: model.RoleUser}
)

type fixture struct {
	db       *sql.DB
	svc      *Service
	catalog  *store.CatalogStore
	lists    *store.ShoppingListStore
	notifier *recorder
	metrics  *metrics.Metrics
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := metrics.New(prometheus.NewRegistry())
	n := &recorder{}
	engine := propagation.NewEngine(m, slog.Default())
	return &fixture{
		db:       db,
		svc:      NewService(db, engine, auth.RolePolicy{}, n, m, 2, slog.Default()),
		catalog:  store.NewCatalogStore(db),
		lists:    store.NewShoppingListStore(db),
		notifier: n,
		metrics:  m,
	}
}

func (f *fixture) category(t *testing.T, name string) *model.Category {
	t.Helper()
	c, err := f.svc.CreateCategory(context.Background(), admin, name)
	require.NoError(t, err)
	return c
}

func (f *fixture) product(t *testing.T, name string, categoryID int64) *model.Product {
	t.Helper()
	p, err := f.svc.CreateProduct(context.Background(), admin, ProductInput{Name: name, CategoryID: &categoryID})
	require.NoError(t, err)
	return p
}

func (f *fixture) list(t *testing.T, owner string, items ...model.Item) *model.ShoppingList {
	t.Helper()
	l, err := f.lists.Create(context.Background(), owner, owner+"'s list", items)
	require.NoError(t, err)
	return l
}

func (f *fixture) items(t *testing.T, id int64) []model.Item {
	t.Helper()
	l, err := f.lists.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, l)
	return l.Items
}

func TestUniquenessGate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	fruits := f.category(t, "Fruits")
	f.product(t, "Apple", fruits.ID)

	_, err := f.svc.CreateProduct(ctx, admin, ProductInput{Name: "apple", CategoryID: &fruits.ID})
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	products, err := f.svc.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 1)

	_, err = f.svc.CreateCategory(ctx, admin, " FRUITS ")
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestProductNameUniqueAcrossCategories(t *testing.T) {
	f := setup(t)
	fruits := f.category(t, "Fruits")
	veg := f.category(t, "Vegetables")
	f.product(t, "Tomato", fruits.ID)

	_, err := f.svc.CreateProduct(context.Background(), admin, ProductInput{Name: "TOMATO", CategoryID: &veg.ID})
	assert.True(t, errors.Is(err, apperr.ErrConflict))
}

func TestRenamePreservesAcquiredState(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	fruits := f.category(t, "Fruits")
	apple := f.product(t, "Apple", fruits.ID)
	a := f.list(t, "alice", model.Item{ProductName: "Apple", Acquired: true}, model.Item{ProductName: "Banana"})
	b := f.list(t, "bob", model.Item{ProductName: "Banana"})

	old, err := f.svc.RenameProduct(ctx, admin, apple.ID, "Gala")
	require.NoError(t, err)
	assert.Equal(t, "Apple", old)

	assert.Equal(t, []model.Item{{ProductName: "Gala", Acquired: true}, {ProductName: "Banana"}}, f.items(t, a.ID))
	assert.Equal(t, []model.Item{{ProductName: "Banana"}}, f.items(t, b.ID))

	p, err := f.svc.GetProduct(ctx, apple.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gala", p.Name)

	require.Len(t, f.notifier.direct["alice"], 1)
	assert.Empty(t, f.notifier.direct["bob"], "unchanged lists are not announced")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ListsRewritten.WithLabelValues(propagation.OpRename)))
}

func TestRenameCaseOnly(t *testing.T) {
	f := setup(t)
	fruits := f.category(t, "Fruits")
	apple := f.product(t, "apple", fruits.ID)
	l := f.list(t, "alice", model.Item{ProductName: "apple"})

	_, err := f.svc.RenameProduct(context.Background(), admin, apple.ID, "Apple")
	require.NoError(t, err)
	assert.Equal(t, []model.Item{{ProductName: "Apple"}}, f.items(t, l.ID))
}

func TestRenameConflictLeavesListsAlone(t *testing.T) {
	f := setup(t)
	fruits := f.category(t, "Fruits")
	apple := f.product(t, "Apple", fruits.ID)
	f.product(t, "Pear", fruits.ID)
	l := f.list(t, "alice", model.Item{ProductName: "Apple"})

	_, err := f.svc.RenameProduct(context.Background(), admin, apple.ID, "pear")
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, []model.Item{{ProductName: "Apple"}}, f.items(t, l.ID))
}

func TestDeleteProductRemovesFromLists(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	fruits := f.category(t, "Fruits")
	apple := f.product(t, "Apple", fruits.ID)
	a := f.list(t, "alice", model.Item{ProductName: "Apple", Acquired: true}, model.Item{ProductName: "Bread"})
	b := f.list(t, "bob", model.Item{ProductName: "Apple"})

	name, err := f.svc.DeleteProduct(ctx, admin, apple.ID)
	require.NoError(t, err)
	assert.Equal(t, "Apple", name)

	assert.Equal(t, []model.Item{{ProductName: "Bread"}}, f.items(t, a.ID))
	assert.Empty(t, f.items(t, b.ID))

	_, err = f.svc.GetProduct(ctx, apple.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = f.svc.DeleteProduct(ctx, admin, apple.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestCategoryCascade(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	produce := f.category(t, "Produce")
	dairy := f.category(t, "Dairy")
	f.product(t, "Apple", produce.ID)
	f.product(t, "Carrot", produce.ID)
	milk := f.product(t, "Milk", dairy.ID)
	a := f.list(t, "alice",
		model.Item{ProductName: "Apple", Acquired: true},
		model.Item{ProductName: "Milk"},
		model.Item{ProductName: "Carrot"},
	)
	b := f.list(t, "bob", model.Item{ProductName: "Carrot", Acquired: true})

	removed, err := f.svc.DeleteCategory(ctx, admin, produce.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Apple", "Carrot"}, removed)

	assert.Equal(t, []model.Item{{ProductName: "Milk"}}, f.items(t, a.ID))
	assert.Empty(t, f.items(t, b.ID))

	products, err := f.svc.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, milk.ID, products[0].ID)

	_, err = f.svc.GetCategory(ctx, produce.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	// One pass for the whole name set.
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PropagationRuns.WithLabelValues(propagation.OpRemove)))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ListsRewritten.WithLabelValues(propagation.OpRemove)))
}

func TestDeleteEmptyCategory(t *testing.T) {
	f := setup(t)
	empty := f.category(t, "Spices")
	l := f.list(t, "alice", model.Item{ProductName: "Salt"})

	removed, err := f.svc.DeleteCategory(context.Background(), admin, empty.ID)
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.Equal(t, []model.Item{{ProductName: "Salt"}}, f.items(t, l.ID))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.PropagationRuns.WithLabelValues(propagation.OpRemove)))
}

func TestNonAdminForbidden(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	fruits := f.category(t, "Fruits")
	apple := f.product(t, "Apple", fruits.ID)
	l := f.list(t, "alice", model.Item{ProductName: "Apple"})
	f.notifier.broadcast = nil

	calls := map[string]func(auth.Identity) error{
		"create category": func(id auth.Identity) error { _, err := f.svc.CreateCategory(ctx, id, "Nuts"); return err },
		"rename category": func(id auth.Identity) error { _, err := f.svc.RenameCategory(ctx, id, fruits.ID, "Fruit"); return err },
		"delete category": func(id auth.Identity) error { _, err := f.svc.DeleteCategory(ctx, id, fruits.ID); return err },
		"create product": func(id auth.Identity) error {
			_, err := f.svc.CreateProduct(ctx, id, ProductInput{Name: "Pear", CategoryID: &fruits.ID})
			return err
		},
		"rename product": func(id auth.Identity) error { _, err := f.svc.RenameProduct(ctx, id, apple.ID, "Gala"); return err },
		"move product":   func(id auth.Identity) error { _, err := f.svc.MoveProduct(ctx, id, apple.ID, fruits.ID); return err },
		"delete product": func(id auth.Identity) error { _, err := f.svc.DeleteProduct(ctx, id, apple.ID); return err },
	}
	for name, call := range calls {
		for _, who := range []auth.Identity{alice, {}, {UserName: "mallory", Role: "ADMIN"}} {
			err := call(who)
			assert.True(t, errors.Is(err, apperr.ErrForbidden), "%s by %q: %v", name, who.UserName, err)
		}
	}

	categories, err := f.svc.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Fruits", categories[0].Name)
	p, err := f.svc.GetProduct(ctx, apple.ID)
	require.NoError(t, err)
	assert.Equal(t, "Apple", p.Name)
	assert.Equal(t, []model.Item{{ProductName: "Apple"}}, f.items(t, l.ID))
	assert.Empty(t, f.notifier.broadcast)
}

func TestMoveProduct(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	fruits := f.category(t, "Fruits")
	veg := f.category(t, "Vegetables")
	tomato := f.product(t, "Tomato", fruits.ID)
	l := f.list(t, "alice", model.Item{ProductName: "Tomato", Acquired: true})

	moved, err := f.svc.MoveProduct(ctx, admin, tomato.ID, veg.ID)
	require.NoError(t, err)
	assert.Equal(t, veg.ID, moved.CategoryID)
	assert.Equal(t, "Vegetables", moved.CategoryName)
	assert.Equal(t, []model.Item{{ProductName: "Tomato", Acquired: true}}, f.items(t, l.ID))

	_, err = f.svc.MoveProduct(ctx, admin, tomato.ID, 999)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = f.svc.MoveProduct(ctx, admin, 999, veg.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestUpdateProductRenameAndMove(t *testing.T) {
	f := setup(t)
	fruits := f.category(t, "Fruits")
	veg := f.category(t, "Vegetables")
	p := f.product(t, "Tomatoe", fruits.ID)
	l := f.list(t, "alice", model.Item{ProductName: "Tomatoe"})

	updated, err := f.svc.UpdateProduct(context.Background(), admin, p.ID, ProductInput{Name: "Tomato", CategoryID: &veg.ID})
	require.NoError(t, err)
	assert.Equal(t, "Tomato", updated.Name)
	assert.Equal(t, veg.ID, updated.CategoryID)
	assert.Equal(t, []model.Item{{ProductName: "Tomato"}}, f.items(t, l.ID))
}

func TestRenameCategory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	fruits := f.category(t, "Fruits")
	f.category(t, "Nuts")

	c, err := f.svc.RenameCategory(ctx, admin, fruits.ID, "Fresh Fruit")
	require.NoError(t, err)
	assert.Equal(t, "Fresh Fruit", c.Name)

	_, err = f.svc.RenameCategory(ctx, admin, fruits.ID, "nuts")
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	_, err = f.svc.RenameCategory(ctx, admin, 999, "Whatever")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestProductNameValidation(t *testing.T) {
	f := setup(t)
	fruits := f.category(t, "Fruits")
	for _, name := range []string{"", "  ", "__ACQUIRED__Apple"} {
		_, err := f.svc.CreateProduct(context.Background(), admin, ProductInput{Name: name, CategoryID: &fruits.ID})
		assert.True(t, errors.Is(err, apperr.ErrValidation), "%q", name)
	}
	_, err := f.svc.CreateCategory(context.Background(), admin, "   ")
	assert.True(t, errors.Is(err, apperr.ErrValidation))
}

func TestCreateProductSuggestsCategory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	dairy := f.category(t, "Dairy")

	p, err := f.svc.CreateProduct(ctx, admin, ProductInput{Name: "Oat Milk"})
	require.NoError(t, err)
	assert.Equal(t, dairy.ID, p.CategoryID)

	// Suggested category does not exist in this catalog.
	_, err = f.svc.CreateProduct(ctx, admin, ProductInput{Name: "Salmon"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = f.svc.CreateProduct(ctx, admin, ProductInput{Name: "Xyzzy"})
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	missing := int64(999)
	_, err = f.svc.CreateProduct(ctx, admin, ProductInput{Name: "Cheese", CategoryID: &missing})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestGetCategoryWithProducts(t *testing.T) {
	f := setup(t)
	fruits := f.category(t, "Fruits")
	f.product(t, "Banana", fruits.ID)
	f.product(t, "Apple", fruits.ID)

	detail, err := f.svc.GetCategory(context.Background(), fruits.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fruits", detail.Name)
	require.Len(t, detail.Products, 2)
	assert.Equal(t, "Apple", detail.Products[0].Name)
}

// failListRewrite makes every rewrite of list id abort inside the database.
func (f *fixture) failListRewrite(t *testing.T, id int64) {
	t.Helper()
	_, err := f.db.Exec(fmt.Sprintf(`CREATE TRIGGER fail_list_rewrite BEFORE DELETE ON shopping_list_items
		WHEN OLD.list_id = %d BEGIN SELECT RAISE(ABORT, 'list rewrite failed'); END`, id))
	require.NoError(t, err)
}

func TestCategoryCascadeRollsBackOnListFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	fruits := f.category(t, "Fruits")
	f.product(t, "Apple", fruits.ID)
	f.product(t, "Banana", fruits.ID)
	a := f.list(t, "alice", model.Item{ProductName: "Apple", Acquired: true}, model.Item{ProductName: "Banana"})
	b := f.list(t, "bob", model.Item{ProductName: "Apple"})
	f.failListRewrite(t, b.ID)

	_, err := f.svc.DeleteCategory(ctx, admin, fruits.ID)
	require.Error(t, err)

	// alice's list was rewritten before bob's failed; both writes are undone.
	assert.Equal(t, []model.Item{{ProductName: "Apple", Acquired: true}, {ProductName: "Banana"}}, f.items(t, a.ID))
	assert.Equal(t, []model.Item{{ProductName: "Apple"}}, f.items(t, b.ID))

	detail, err := f.svc.GetCategory(ctx, fruits.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Products, 2)
	assert.Empty(t, f.notifier.direct)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.PropagationRuns.WithLabelValues(propagation.OpRemove)))

	_, err = f.db.Exec(`DROP TRIGGER fail_list_rewrite`)
	require.NoError(t, err)

	removed, err := f.svc.DeleteCategory(ctx, admin, fruits.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Apple", "Banana"}, removed)
	assert.Empty(t, f.items(t, a.ID))
	assert.Empty(t, f.items(t, b.ID))
}

func TestDeleteProductRollsBackOnListFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	fruits := f.category(t, "Fruits")
	apple := f.product(t, "Apple", fruits.ID)
	a := f.list(t, "alice", model.Item{ProductName: "Apple"}, model.Item{ProductName: "Bread"})
	b := f.list(t, "bob", model.Item{ProductName: "Apple", Acquired: true})
	f.failListRewrite(t, b.ID)

	_, err := f.svc.DeleteProduct(ctx, admin, apple.ID)
	require.Error(t, err)

	p, err := f.svc.GetProduct(ctx, apple.ID)
	require.NoError(t, err)
	assert.Equal(t, "Apple", p.Name)
	assert.Equal(t, []model.Item{{ProductName: "Apple"}, {ProductName: "Bread"}}, f.items(t, a.ID))
	assert.Equal(t, []model.Item{{ProductName: "Apple", Acquired: true}}, f.items(t, b.ID))
}

func TestRenameRollsBackOnListFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	fruits := f.category(t, "Fruits")
	apple := f.product(t, "Apple", fruits.ID)
	a := f.list(t, "alice", model.Item{ProductName: "Apple", Acquired: true})
	b := f.list(t, "bob", model.Item{ProductName: "Apple"})
	f.failListRewrite(t, b.ID)

	_, err := f.svc.RenameProduct(ctx, admin, apple.ID, "Green Apple")
	require.Error(t, err)

	p, err := f.svc.GetProduct(ctx, apple.ID)
	require.NoError(t, err)
	assert.Equal(t, "Apple", p.Name)
	assert.Equal(t, []model.Item{{ProductName: "Apple", Acquired: true}}, f.items(t, a.ID))
	assert.Equal(t, []model.Item{{ProductName: "Apple"}}, f.items(t, b.ID))
}

func TestWithRetryStartsEachAttemptInFreshTx(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var attempts int
	err := f.svc.withRetry(ctx, func(tx *sql.Tx) error {
		attempts++
		cat := f.catalog.WithTx(tx)
		existing, err := cat.GetCategoryByName(ctx, "Herbs")
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("attempt %d sees write from a rolled back attempt", attempts)
		}
		if _, err := cat.CreateCategory(ctx, "Herbs"); err != nil {
			return err
		}
		if attempts == 1 {
			return apperr.ErrConcurrentModification
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConcurrentConflicts.WithLabelValues("catalog")))

	c, err := f.catalog.GetCategoryByName(ctx, "Herbs")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestWithRetryStopsOnNotFound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	fruits := f.category(t, "Fruits")
	apple := f.product(t, "Apple", fruits.ID)

	// The product is deleted by another writer between the attempts.
	f.svc.onConflict = func(err error) {
		f.svc.recordConflict(err)
		require.NoError(t, f.catalog.DeleteProduct(ctx, apple.ID))
	}

	var attempts int
	err := f.svc.withRetry(ctx, func(tx *sql.Tx) error {
		attempts++
		p, err := f.catalog.WithTx(tx).GetProduct(ctx, apple.ID)
		if err != nil {
			return err
		}
		if p == nil {
			return apperr.NotFoundf("product %d not found", apple.ID)
		}
		return apperr.ErrConcurrentModification
	})
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "got %v", err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConcurrentConflicts.WithLabelValues("catalog")))
}
