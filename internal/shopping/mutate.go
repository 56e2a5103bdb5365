package shopping

import "github.com/dukerupert/shoplist/internal/model"

// AddItem appends an unacquired item named name unless an item with that
// exact name is already present, acquired or not. It reports whether
// items changed; an unchanged result is the input slice itself.
func AddItem(items []model.Item, name string) ([]model.Item, bool) {
	if indexOf(items, name) >= 0 {
		return items, false
	}
	out := make([]model.Item, len(items), len(items)+1)
	copy(out, items)
	return append(out, model.Item{ProductName: name}), true
}

// RemoveItem drops every item named name.
func RemoveItem(items []model.Item, name string) ([]model.Item, bool) {
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if it.ProductName != name {
			out = append(out, it)
		}
	}
	if len(out) == len(items) {
		return items, false
	}
	return out, true
}

// SetAcquired sets the acquired state of the item named name in place,
// keeping its position. Later entries of the same name are dropped.
// A name that is not present leaves items unchanged.
func SetAcquired(items []model.Item, name string, acquired bool) ([]model.Item, bool) {
	i := indexOf(items, name)
	if i < 0 {
		return items, false
	}

	out := make([]model.Item, 0, len(items))
	changed := false
	for j, it := range items {
		if it.ProductName != name {
			out = append(out, it)
			continue
		}
		if j != i {
			changed = true
			continue
		}
		if it.Acquired != acquired {
			it.Acquired = acquired
			changed = true
		}
		out = append(out, it)
	}
	if !changed {
		return items, false
	}
	return out, true
}

func indexOf(items []model.Item, name string) int {
	for i, it := range items {
		if it.ProductName == name {
			return i
		}
	}
	return -1
}
