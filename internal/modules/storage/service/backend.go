package service

import (
	"context"

	"signal_tracker/internal/models"

	"github.com/pkg/errors"
)

// Backend: хранилище ячеек одной таблицы. Строки и колонки 1-based,
// колонок ровно models.ColumnCount. Незаписанная ячейка читается как "".
type Backend interface {
	// AppendRow дописывает строку в конец и возвращает её номер (= число строк).
	AppendRow(ctx context.Context, fields []string) (int, error)
	RowCount(ctx context.Context) (int, error)
	// ReadRow: все колонки строки, nil если строки нет.
	ReadRow(ctx context.Context, row int) ([]string, error)
	ReadCell(ctx context.Context, row, col int) (string, error)
	ReadStyle(ctx context.Context, row, col int) (models.CellStyle, error)
	WriteCell(ctx context.Context, row, col int, value string) error
	ApplyNumberFormat(ctx context.Context, row, col int, format models.NumberFormat) error
	ApplyBackground(ctx context.Context, row, col int, color models.Color) error
	Close() error
}

var (
	errBadCell = errors.New("cell out of range")
	errTooWide = errors.New("row is wider than the table")
	errClosed  = errors.New("backend is closed")
)

func checkCell(row, col int) error {
	if row < 1 || col < 1 || col > models.ColumnCount {
		return errors.Wrapf(errBadCell, "row=%d col=%d", row, col)
	}
	return nil
}

// padRow дополняет строку пустыми ячейками до ширины таблицы.
func padRow(fields []string) ([]string, error) {
	if len(fields) > models.ColumnCount {
		return nil, errors.Wrapf(errTooWide, "%d fields", len(fields))
	}
	out := make([]string, models.ColumnCount)
	copy(out, fields)
	return out, nil
}
