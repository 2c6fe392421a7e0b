package constants

import "strings"

// AllowedExtensions holds the spreadsheet extensions accepted at intake.
var AllowedExtensions = map[string]struct{}{
	"xlsx": {},
	"xlsm": {},
}

// SpreadsheetMIME is the content type reported for Office Open XML workbooks.
const SpreadsheetMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether ext (with or without dot) may be submitted.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
