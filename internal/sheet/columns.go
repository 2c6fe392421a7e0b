package sheet

import (
	"github.com/joseph-ayodele/orders-tracker/constants"
)

// Classification reports which of the required column roles a row provides.
type Classification struct {
	HasProduct  bool
	HasQuantity bool
	HasPrice    bool
}

// Classify inspects the field names of a single row. Names are case-folded
// and trimmed; product matches by substring, quantity and price by alias.
func Classify(fields []string) Classification {
	var c Classification
	for _, name := range fields {
		if constants.IsProductHeader(name) {
			c.HasProduct = true
		}
		switch col, _ := constants.NumericColumn(name); col {
		case constants.ColumnQuantity:
			c.HasQuantity = true
		case constants.ColumnPrice:
			c.HasPrice = true
		}
	}
	return c
}

// Valid reports whether all three roles are present.
func (c Classification) Valid() bool {
	return c.HasProduct && c.HasQuantity && c.HasPrice
}

// Missing names the absent roles in a fixed order.
func (c Classification) Missing() []string {
	var missing []string
	if !c.HasProduct {
		missing = append(missing, string(constants.ColumnProduct))
	}
	if !c.HasQuantity {
		missing = append(missing, string(constants.ColumnQuantity))
	}
	if !c.HasPrice {
		missing = append(missing, string(constants.ColumnPrice))
	}
	return missing
}
