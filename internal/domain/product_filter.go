package domain

import (
	"sort"
	"strings"
)

// Valid reports whether the sort key is supported. Empty means the default ordering.
func (s ProductSort) Valid() bool {
	switch s {
	case "", ProductSortNameAsc, ProductSortNameDesc, ProductSortPriceAsc, ProductSortPriceDesc,
		ProductSortCreatedAtAsc, ProductSortCreatedAtDesc:
		return true
	}
	return false
}

// Match reports whether the product satisfies every populated filter field.
func (f ProductFilter) Match(p Product) bool {
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(p.Name), needle) && !strings.Contains(strings.ToLower(p.Description), needle) {
			return false
		}
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Company != "" && p.Company != f.Company {
		return false
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	if f.VIP != nil && p.VIP != *f.VIP {
		return false
	}
	if f.Shipping != nil && p.Shipping != *f.Shipping {
		return false
	}
	if len(f.Colors) > 0 && !anyColor(p.Colors, f.Colors) {
		return false
	}
	return true
}

func anyColor(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}

// Apply filters products and orders them by the filter's sort key (newest first by default).
func (f ProductFilter) Apply(products []Product) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if f.Match(p) {
			out = append(out, p)
		}
	}

	var less func(a, b Product) bool
	switch f.Sort {
	case ProductSortNameAsc:
		less = func(a, b Product) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case ProductSortNameDesc:
		less = func(a, b Product) bool { return strings.ToLower(a.Name) > strings.ToLower(b.Name) }
	case ProductSortPriceAsc:
		less = func(a, b Product) bool { return a.Price < b.Price }
	case ProductSortPriceDesc:
		less = func(a, b Product) bool { return a.Price > b.Price }
	case ProductSortCreatedAtAsc:
		less = func(a, b Product) bool { return a.CreatedAt.Before(b.CreatedAt) }
	default:
		less = func(a, b Product) bool { return a.CreatedAt.After(b.CreatedAt) }
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
