package sheet

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row maps a header name, verbatim, to the raw text of a non-empty cell.
type Row map[string]string

// Keys returns the row's field names in sorted order.
func (r Row) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const (
	unzipSizeLimit    = 256 << 20
	unzipXMLSizeLimit = 64 << 20
)

// Parse decodes the first worksheet of the workbook at path and checks that
// the first data row carries product, quantity and price columns.
// It runs in-process; callers handling untrusted files go through Isolated.
func Parse(path string) ([]Row, error) {
	rows, err := decode(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, newParseError(KindEmptyFile, "empty file: the sheet has no data rows", nil)
	}
	if c := Classify(rows[0].Keys()); !c.Valid() {
		return nil, newParseError(KindSchemaInvalid,
			fmt.Sprintf("invalid format: missing %s column(s) in the first row", strings.Join(c.Missing(), ", ")), nil)
	}
	return rows, nil
}

func decode(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path, excelize.Options{
		UnzipSizeLimit:    unzipSizeLimit,
		UnzipXMLSizeLimit: unzipXMLSizeLimit,
	})
	if err != nil {
		return nil, ioError("cannot open spreadsheet: "+err.Error(), err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	raw, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, ioError("cannot read worksheet "+strconv.Quote(sheets[0])+": "+err.Error(), err)
	}

	headerAt := -1
	for i, cells := range raw {
		if !blank(cells) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, nil
	}
	width := 0
	for _, cells := range raw[headerAt:] {
		width = max(width, len(cells))
	}
	headers := headerNames(raw[headerAt], width)

	var rows []Row
	for _, cells := range raw[headerAt+1:] {
		row := make(Row)
		for i, cell := range cells {
			if strings.TrimSpace(cell) == "" {
				continue
			}
			row[headers[i]] = cell
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// headerNames trims header text and otherwise keeps it as written, for width
// columns. Blank or missing header cells are named __EMPTY, __EMPTY_1, ...
// and repeats get _1, _2, ... suffixes, so no data cell goes unkeyed.
func headerNames(cells []string, width int) []string {
	names := make([]string, width)
	seen := make(map[string]int, width)
	for i := range names {
		name := emptyHeader
		if i < len(cells) {
			if h := strings.TrimSpace(cells[i]); h != "" {
				name = h
			}
		}
		n := seen[name]
		seen[name] = n + 1
		if n > 0 {
			name = name + "_" + strconv.Itoa(n)
		}
		names[i] = name
	}
	return names
}

const emptyHeader = "__EMPTY"

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
