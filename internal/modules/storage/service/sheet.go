package service

import (
	"context"
	"strings"
	"time"

	"signal_tracker/internal/models"

	"go.uber.org/zap"
)

// Sheet: таблица сигналов поверх Backend. Все ошибки - *models.StorageError,
// ретраев здесь нет.
type Sheet struct {
	b   Backend
	log *zap.Logger
}

func NewSheet(b Backend, log *zap.Logger) *Sheet {
	return &Sheet{b: b, log: log.Named("sheet")}
}

func (s *Sheet) AppendRow(ctx context.Context, fields []string) (int, error) {
	row, err := s.b.AppendRow(ctx, fields)
	if err != nil {
		return 0, models.NewStorageError("append_row", err)
	}
	return row, nil
}

func (s *Sheet) RowCount(ctx context.Context) (int, error) {
	n, err := s.b.RowCount(ctx)
	return n, models.NewStorageError("row_count", err)
}

func (s *Sheet) ReadRow(ctx context.Context, row int) ([]string, error) {
	fields, err := s.b.ReadRow(ctx, row)
	return fields, models.NewStorageError("read_row", err)
}

func (s *Sheet) ReadCell(ctx context.Context, row, col int) (string, error) {
	v, err := s.b.ReadCell(ctx, row, col)
	return v, models.NewStorageError("read_cell", err)
}

func (s *Sheet) ReadStyle(ctx context.Context, row, col int) (models.CellStyle, error) {
	st, err := s.b.ReadStyle(ctx, row, col)
	return st, models.NewStorageError("read_style", err)
}

func (s *Sheet) WriteCell(ctx context.Context, row, col int, value string) error {
	return models.NewStorageError("write_cell", s.b.WriteCell(ctx, row, col, value))
}

// ApplyNumberFormat: процентный формат для ячейки изменения.
func (s *Sheet) ApplyNumberFormat(ctx context.Context, row, col int, format models.NumberFormat) error {
	return models.NewStorageError("number_format", s.b.ApplyNumberFormat(ctx, row, col, format))
}

// ApplyConditionalColor: рост - зелёный, падение - красный, ноль не трогаем.
func (s *Sheet) ApplyConditionalColor(ctx context.Context, row, col int, value float64) error {
	color, ok := models.ChangeColor(value)
	if !ok {
		return nil
	}
	return models.NewStorageError("background", s.b.ApplyBackground(ctx, row, col, color))
}

// EnsureHeader пишет шапку в пустую таблицу или переписывает первую строку,
// если она не совпадает. Строку сигнала на месте шапки не трогает.
func (s *Sheet) EnsureHeader(ctx context.Context) error {
	n, err := s.RowCount(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.AppendRow(ctx, models.ColumnHeaders); err != nil {
			return err
		}
		s.log.Info("header written")
		return nil
	}

	current, err := s.ReadRow(ctx, models.HeaderRow)
	if err != nil {
		return err
	}
	if looksLikeSignal(current) {
		s.log.Error("row 1 holds a signal, header not written",
			zap.Strings("row", current))
		return nil
	}

	rewritten := 0
	for i, want := range models.ColumnHeaders {
		if i < len(current) && current[i] == want {
			continue
		}
		if err := s.WriteCell(ctx, models.HeaderRow, i+1, want); err != nil {
			return err
		}
		rewritten++
	}
	if rewritten > 0 {
		s.log.Warn("header mismatch, row 1 rewritten", zap.Int("cells", rewritten))
	}
	return nil
}

// looksLikeSignal: в колонке времени сигнала лежит время, а не заголовок.
func looksLikeSignal(fields []string) bool {
	if len(fields) < models.ColSignalTime {
		return false
	}
	_, err := time.Parse(models.TimeLayout, strings.TrimSpace(fields[models.ColSignalTime-1]))
	return err == nil
}

func (s *Sheet) Close() error {
	return models.NewStorageError("close", s.b.Close())
}
