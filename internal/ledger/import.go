package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ImportReport summarises one CSV bulk upload.
type ImportReport struct {
	Appended int        `json:"appended"`
	Rejected []RowError `json:"rejected,omitempty"`
}

// RowError reports one rejected CSV row with its line number.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ErrEmptyImport indicates a CSV upload with no data rows.
var ErrEmptyImport = errors.New("ledger: import contains no data rows")

// ImportCSV appends entries from a CSV feed. The first row must be the
// header. Rows are validated through the same path as single appends; a bad
// row is reported with its line number and does not abort the rest of the
// upload.
func (s *Service) ImportCSV(ctx context.Context, r io.Reader, actorID int64) (ImportReport, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return ImportReport{}, ErrEmptyImport
		}
		return ImportReport{}, fmt.Errorf("ledger: read csv header: %w", err)
	}
	index, err := headerIndex(header)
	if err != nil {
		return ImportReport{}, err
	}

	var report ImportReport
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return ImportReport{}, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			report.Rejected = append(report.Rejected, RowError{Line: line, Reason: err.Error()})
			continue
		}
		input, err := rowToInput(record, index, actorID)
		if err != nil {
			report.Rejected = append(report.Rejected, RowError{Line: line, Reason: err.Error()})
			continue
		}
		if _, err := s.Append(ctx, input); err != nil {
			report.Rejected = append(report.Rejected, RowError{Line: line, Reason: err.Error()})
			continue
		}
		report.Appended++
	}
	if report.Appended == 0 && len(report.Rejected) == 0 {
		return ImportReport{}, ErrEmptyImport
	}
	return report, nil
}

func headerIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"item_code", "kind", "date", "qty"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("ledger: import header missing column %q", required)
		}
	}
	return index, nil
}

func rowToInput(record []string, index map[string]int, actorID int64) (AppendInput, error) {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	number := func(name string) (float64, error) {
		raw := field(name)
		if raw == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", name, err)
		}
		return v, nil
	}

	date, err := time.Parse("2006-01-02", field("date"))
	if err != nil {
		return AppendInput{}, fmt.Errorf("column date: %w", err)
	}
	qty, err := number("qty")
	if err != nil {
		return AppendInput{}, err
	}
	unitCost, err := number("unit_cost")
	if err != nil {
		return AppendInput{}, err
	}
	amount, err := number("amount")
	if err != nil {
		return AppendInput{}, err
	}

	return AppendInput{
		ItemCode:  field("item_code"),
		Kind:      EntryKind(strings.ToUpper(field("kind"))),
		Date:      date,
		Qty:       qty,
		UnitCost:  unitCost,
		Amount:    amount,
		Supplier:  field("supplier"),
		GRNNumber: field("grn_number"),
		Purpose:   field("purpose"),
		Remarks:   field("remarks"),
		ActorID:   actorID,
	}, nil
}
