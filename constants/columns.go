package constants

import (
	"strings"
)

// Column is the role a spreadsheet header plays for aggregation.
type Column string

const (
	ColumnProduct  Column = "product"
	ColumnQuantity Column = "quantity"
	ColumnPrice    Column = "price"
	ColumnOther    Column = "other"
)

// productHints match anywhere inside a header name.
var productHints = []string{"product", "item", "name"}

// exact aliases for the numeric columns
var numericAliases = map[string]Column{
	"quantity": ColumnQuantity,
	"qty":      ColumnQuantity,
	"price":    ColumnPrice,
	"amount":   ColumnPrice,
}

// NormalizeHeader case-folds and trims a header name.
func NormalizeHeader(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsProductHeader reports whether a header plausibly carries a product label.
func IsProductHeader(name string) bool {
	normalized := NormalizeHeader(name)
	for _, hint := range productHints {
		if strings.Contains(normalized, hint) {
			return true
		}
	}
	return false
}

// NumericColumn maps a header to ColumnQuantity or ColumnPrice when it is an exact alias.
func NumericColumn(name string) (Column, bool) {
	col, ok := numericAliases[NormalizeHeader(name)]
	if !ok {
		return ColumnOther, false
	}
	return col, true
}
