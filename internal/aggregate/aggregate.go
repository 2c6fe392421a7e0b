// Package aggregate reduces parsed spreadsheet rows to order metrics.
package aggregate

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/orders-tracker/constants"
	"github.com/joseph-ayodele/orders-tracker/internal/common"
	"github.com/joseph-ayodele/orders-tracker/internal/entity"
	"github.com/joseph-ayodele/orders-tracker/internal/sheet"
)

// ErrOverflow is returned by Check for totals too large for a float64.
var ErrOverflow = common.NewAppError("METRICS_OVERFLOW", "order totals exceed the representable range", common.ErrInvalidInput)

// Aggregate computes revenue, item count and average order value over rows.
// Quantity and price are read from the first field matching an alias; values
// that are missing, non-numeric, non-finite or negative count as 0. The result
// does not depend on row order. Totals that overflow come back as +Inf; see Check.
func Aggregate(rows []sheet.Row) entity.Metrics {
	revenue := make([]float64, 0, len(rows))
	items := make([]float64, 0, len(rows))
	for _, row := range rows {
		qty, price := lineValues(row)
		revenue = append(revenue, qty*price)
		items = append(items, qty)
	}

	m := entity.Metrics{
		TotalRevenue: stableSum(revenue),
		TotalItems:   stableSum(items),
	}
	if len(rows) > 0 {
		m.AverageOrderValue = m.TotalRevenue / float64(len(rows))
	}
	return m
}

// Check reports ErrOverflow when any figure in m is not finite.
func Check(m entity.Metrics) error {
	for _, v := range []float64{m.TotalRevenue, m.TotalItems, m.AverageOrderValue} {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return ErrOverflow
		}
	}
	return nil
}

// lineValues picks the quantity and price of one row. With several aliases
// present, the lexically first header wins so the choice is deterministic.
func lineValues(row sheet.Row) (qty, price float64) {
	var haveQty, havePrice bool
	for _, key := range row.Keys() {
		col, ok := constants.NumericColumn(key)
		if !ok {
			continue
		}
		switch {
		case col == constants.ColumnQuantity && !haveQty:
			qty, haveQty = Coerce(row[key]), true
		case col == constants.ColumnPrice && !havePrice:
			price, havePrice = Coerce(row[key]), true
		}
	}
	return qty, price
}

// Coerce parses a cell as a non-negative finite number, or returns 0.
func Coerce(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// stableSum sorts its input and adds it with Neumaier compensation, so any
// permutation of the same values yields the same float64. Inputs are
// non-negative, so the only non-finite result is +Inf.
func stableSum(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)

	var sum, comp float64
	for _, v := range sorted {
		t := sum + v
		if math.Abs(sum) >= math.Abs(v) {
			comp += (sum - t) + v
		} else {
			comp += (v - t) + sum
		}
		sum = t
	}
	if math.IsInf(sum, 0) {
		return sum
	}
	return sum + comp
}
