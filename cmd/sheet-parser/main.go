// Command sheet-parser decodes one spreadsheet per invocation for ordersd.
// It reads a JSON request on stdin and writes one JSON response to stdout;
// logs go to stderr only.
package main

import (
	"log/slog"
	"os"

	"github.com/joseph-ayodele/orders-tracker/internal/sheet"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if err := sheet.Serve(os.Stdin, os.Stdout); err != nil {
		logger.Error("sheet-parser failed", "error", err)
		os.Exit(1)
	}
}
