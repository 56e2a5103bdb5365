// Package propagation rewrites every shopping list after a catalog
// product is renamed or removed.
//
// The Engine never opens transactions itself. Callers hand it a Lists
// bound to the transaction that also carries the catalog write, so the
// catalog change and all list rewrites commit or roll back together.
package propagation

import (
	"context"
	"log/slog"

	"github.com/dukerupert/shoplist/internal/itemcodec"
	"github.com/dukerupert/shoplist/internal/metrics"
	"github.com/dukerupert/shoplist/internal/model"
)

const (
	OpRename = "product_rename"
	OpRemove = "product_remove"
)

// Lists is the shopping list storage a pass reads and writes.
// *store.ShoppingListStore satisfies it.
type Lists interface {
	ListAll(ctx context.Context) ([]model.ShoppingList, error)
	Save(ctx context.Context, list *model.ShoppingList) error
}

// Result describes one pass. Rewritten holds the lists that were saved,
// with their new items and version.
type Result struct {
	Scanned   int
	Rewritten []model.ShoppingList
}

type Engine struct {
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewEngine(m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{metrics: m, logger: logger.With("component", "propagation")}
}

// RenameProduct replaces every item named oldName with newName in every
// list, keeping each item's acquired state. A list already holding
// newName keeps its first entry only.
func (e *Engine) RenameProduct(ctx context.Context, lists Lists, oldName, newName string) (Result, error) {
	res, err := e.run(ctx, lists, func(items []model.Item) ([]model.Item, bool) {
		return RenameItems(items, oldName, newName)
	})
	if err != nil {
		return res, err
	}
	e.metrics.ObservePropagation(OpRename, res.Scanned, len(res.Rewritten))
	e.logger.Info("product renamed in lists", "old_name", oldName, "new_name", newName, "scanned", res.Scanned, "rewritten", len(res.Rewritten))
	return res, nil
}

// RemoveProducts deletes every item named by names from every list in a
// single pass.
func (e *Engine) RemoveProducts(ctx context.Context, lists Lists, names []string) (Result, error) {
	if len(names) == 0 {
		return Result{}, nil
	}
	res, err := e.run(ctx, lists, func(items []model.Item) ([]model.Item, bool) {
		return RemoveItems(items, names)
	})
	if err != nil {
		return res, err
	}
	e.metrics.ObservePropagation(OpRemove, res.Scanned, len(res.Rewritten))
	e.logger.Info("products removed from lists", "products", len(names), "scanned", res.Scanned, "rewritten", len(res.Rewritten))
	return res, nil
}

func (e *Engine) run(ctx context.Context, lists Lists, rewrite func([]model.Item) ([]model.Item, bool)) (Result, error) {
	all, err := lists.ListAll(ctx)
	if err != nil {
		return Result{}, err
	}

	res := Result{Scanned: len(all)}
	for i := range all {
		list := &all[i]
		items, changed := rewrite(list.Items)
		if !changed {
			continue
		}
		list.Items = items
		if err := lists.Save(ctx, list); err != nil {
			return Result{}, err
		}
		res.Rewritten = append(res.Rewritten, *list)
	}
	return res, nil
}

// RenameItems returns items with every entry named oldName renamed to
// newName, and whether anything was renamed. Names match exactly.
func RenameItems(items []model.Item, oldName, newName string) ([]model.Item, bool) {
	if oldName == newName {
		return items, false
	}
	out := make([]model.Item, len(items))
	changed := false
	for i, it := range items {
		if it.ProductName == oldName {
			it.ProductName = newName
			changed = true
		}
		out[i] = it
	}
	if !changed {
		return items, false
	}
	return itemcodec.Normalize(out), true
}

// RemoveItems returns items without the entries named by names, and
// whether anything was removed.
func RemoveItems(items []model.Item, names []string) ([]model.Item, bool) {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if _, ok := drop[it.ProductName]; ok {
			continue
		}
		out = append(out, it)
	}
	if len(out) == len(items) {
		return items, false
	}
	return out, true
}
