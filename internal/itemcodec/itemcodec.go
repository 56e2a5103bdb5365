// Package itemcodec converts shopping list items to and from the legacy
// single-string form, where an acquired item carries the Marker prefix.
//
// Items are stored structurally; this form is only used for import and
// export so existing data stays byte-compatible.
package itemcodec

import (
	"strings"

	"github.com/dukerupert/shoplist/internal/apperr"
	"github.com/dukerupert/shoplist/internal/model"
)

// Marker prefixes the product name of an acquired item.
const Marker = "__ACQUIRED__"

// Encode returns the legacy string for it.
func Encode(it model.Item) string {
	if it.Acquired {
		return Marker + it.ProductName
	}
	return it.ProductName
}

// Decode parses a legacy string. It never fails; a string without the
// marker is an unacquired item named by the whole string.
func Decode(s string) model.Item {
	if name, ok := strings.CutPrefix(s, Marker); ok {
		return model.Item{ProductName: name, Acquired: true}
	}
	return model.Item{ProductName: s}
}

// EncodeAll encodes items in order.
func EncodeAll(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = Encode(it)
	}
	return out
}

// DecodeAll decodes entries in order.
func DecodeAll(entries []string) []model.Item {
	out := make([]model.Item, len(entries))
	for i, s := range entries {
		out[i] = Decode(s)
	}
	return out
}

// SameItem reports whether two legacy strings denote the same logical
// item, regardless of acquired state.
func SameItem(a, b string) bool {
	return Decode(a).ProductName == Decode(b).ProductName
}

// ValidateName rejects names that cannot round-trip through Encode and
// Decode: empty names and names starting with Marker.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Validationf("name is required")
	}
	if strings.HasPrefix(name, Marker) {
		return apperr.Validationf("name must not start with %q", Marker)
	}
	return nil
}

// Normalize drops every item whose product name already appeared earlier
// in items. The first occurrence keeps its position and acquired state.
func Normalize(items []model.Item) []model.Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if _, dup := seen[it.ProductName]; dup {
			continue
		}
		seen[it.ProductName] = struct{}{}
		out = append(out, it)
	}
	return out
}
