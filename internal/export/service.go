package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/receipt-sync/constants"
	"github.com/joseph-ayodele/receipt-sync/internal/repository"
)

// SheetName is the worksheet holding the ledger rows.
const SheetName = "Runs"

var headers = []string{
	"Run Time",
	"Run ID",
	"Contract",
	"Status",
	"File",
	"Size",
	"Similarity",
	"SHA-256",
	"Error",
}

// Lister reads ledger entries; repository.Ledger satisfies it.
type Lister interface {
	List(ctx context.Context, f repository.Filter) ([]repository.Entry, error)
}

// Service is a tiny façade over the ledger that produces XLSX bytes for exports.
type Service struct {
	ledger Lister
	logger *slog.Logger
}

func NewService(ledger Lister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: ledger, logger: logger}
}

// Window normalises from/to dates to a ledger filter.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> everything.
func Window(contract string, from, to *time.Time, now time.Time) repository.Filter {
	f := repository.Filter{Contract: contract}
	if from != nil {
		d := dayStart(*from)
		f.From = &d
	}
	if to != nil {
		d := dayStart(*to).AddDate(0, 0, 1)
		f.To = &d
	} else if from != nil {
		d := dayStart(now).AddDate(0, 0, 1)
		f.To = &d
	}
	return f
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ExportLedgerXLSX returns an XLSX workbook (as bytes) with one row per ledger entry.
func (s *Service) ExportLedgerXLSX(ctx context.Context, filter repository.Filter) ([]byte, error) {
	start := time.Now()

	entries, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(SheetName)
	f.SetActiveSheet(activeIndex)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	for i, e := range entries {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}

		write(1, e.RecordedAt.UTC().Format(time.RFC3339))
		write(2, e.RunID.String())
		write(3, e.Contract)
		write(4, string(e.Status))
		write(5, e.Filename)
		if e.Status != constants.SyncStatusFailed || e.Size > 0 {
			write(6, e.Size)
			write(7, e.Similarity)
		}
		write(8, e.SHA256)
		write(9, truncate(e.Error, 200))
	}

	_ = f.SetColWidth(SheetName, "A", "A", 22) // time
	_ = f.SetColWidth(SheetName, "B", "B", 38) // run id
	_ = f.SetColWidth(SheetName, "C", "D", 14)
	_ = f.SetColWidth(SheetName, "E", "E", 16) // file
	_ = f.SetColWidth(SheetName, "H", "H", 66) // sha
	_ = f.SetColWidth(SheetName, "I", "I", 60) // error

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"contract", filter.Contract,
		"rows", len(entries),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n == 1 {
		return string(r[:1])
	}
	return string(r[:n-1]) + "…"
}
