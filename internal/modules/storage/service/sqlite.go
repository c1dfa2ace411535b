package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"signal_tracker/internal/models"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sheet_cells (
	sheet         TEXT    NOT NULL,
	row_index     INTEGER NOT NULL,
	col           INTEGER NOT NULL,
	value         TEXT    NOT NULL DEFAULT '',
	number_format TEXT,
	background    TEXT,
	PRIMARY KEY (sheet, row_index, col)
)`

// SQLite: таблица в файле sqlite, несколько листов в одном файле.
type SQLite struct {
	db    *sql.DB
	sheet string
	// sqlite пишет в один поток, AppendRow читает MAX и пишет в одной транзакции
	mu sync.Mutex
}

func OpenSQLite(path, sheet string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create sqlite dir")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set WAL mode")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return &SQLite{db: db, sheet: sheet}, nil
}

func (s *SQLite) AppendRow(ctx context.Context, fields []string) (row int, err error) {
	values, err := padRow(fields)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(row_index), 0) FROM sheet_cells WHERE sheet = ?`, s.sheet,
	).Scan(&row); err != nil {
		return 0, errors.Wrap(err, "count rows")
	}
	row++

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sheet_cells (sheet, row_index, col, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	for i, v := range values {
		if _, err = stmt.ExecContext(ctx, s.sheet, row, i+1, v); err != nil {
			return 0, errors.Wrapf(err, "insert col %d", i+1)
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit")
	}
	return row, nil
}

func (s *SQLite) RowCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(row_index), 0) FROM sheet_cells WHERE sheet = ?`, s.sheet,
	).Scan(&n)
	return n, errors.Wrap(err, "count rows")
}

func (s *SQLite) ReadRow(ctx context.Context, row int) ([]string, error) {
	if err := checkCell(row, 1); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT col, value FROM sheet_cells WHERE sheet = ? AND row_index = ?`, s.sheet, row)
	if err != nil {
		return nil, errors.Wrap(err, "select row")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var (
			col   int
			value string
		)
		if err := rows.Scan(&col, &value); err != nil {
			return nil, errors.Wrap(err, "scan cell")
		}
		if out == nil {
			out = make([]string, models.ColumnCount)
		}
		if col >= 1 && col <= models.ColumnCount {
			out[col-1] = value
		}
	}
	return out, errors.Wrap(rows.Err(), "iterate row")
}

func (s *SQLite) ReadCell(ctx context.Context, row, col int) (string, error) {
	if err := checkCell(row, col); err != nil {
		return "", err
	}
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM sheet_cells WHERE sheet = ? AND row_index = ? AND col = ?`, s.sheet, row, col,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, errors.Wrap(err, "select cell")
}

func (s *SQLite) ReadStyle(ctx context.Context, row, col int) (models.CellStyle, error) {
	if err := checkCell(row, col); err != nil {
		return models.CellStyle{}, err
	}
	var format, background sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT number_format, background FROM sheet_cells WHERE sheet = ? AND row_index = ? AND col = ?`,
		s.sheet, row, col,
	).Scan(&format, &background)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CellStyle{}, nil
	}
	if err != nil {
		return models.CellStyle{}, errors.Wrap(err, "select style")
	}
	return decodeStyle(format.String, background.String)
}

func (s *SQLite) WriteCell(ctx context.Context, row, col int, value string) error {
	return s.upsert(ctx, row, col, "value", value)
}

func (s *SQLite) ApplyNumberFormat(ctx context.Context, row, col int, format models.NumberFormat) error {
	raw, err := sonic.MarshalString(format)
	if err != nil {
		return errors.Wrap(err, "encode number format")
	}
	return s.upsert(ctx, row, col, "number_format", raw)
}

func (s *SQLite) ApplyBackground(ctx context.Context, row, col int, color models.Color) error {
	raw, err := sonic.MarshalString(color)
	if err != nil {
		return errors.Wrap(err, "encode color")
	}
	return s.upsert(ctx, row, col, "background", raw)
}

// upsert пишет одно поле ячейки. field - только из констант пакета.
func (s *SQLite) upsert(ctx context.Context, row, col int, field, value string) error {
	if err := checkCell(row, col); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sheet_cells (sheet, row_index, col, `+field+`) VALUES (?, ?, ?, ?)
		ON CONFLICT (sheet, row_index, col) DO UPDATE SET `+field+` = excluded.`+field,
		s.sheet, row, col, value)
	return errors.Wrapf(err, "upsert %s", field)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func decodeStyle(format, background string) (models.CellStyle, error) {
	var style models.CellStyle
	if format != "" {
		style.NumberFormat = &models.NumberFormat{}
		if err := sonic.UnmarshalString(format, style.NumberFormat); err != nil {
			return models.CellStyle{}, errors.Wrap(err, "decode number format")
		}
	}
	if background != "" {
		style.Background = &models.Color{}
		if err := sonic.UnmarshalString(background, style.Background); err != nil {
			return models.CellStyle{}, errors.Wrap(err, "decode color")
		}
	}
	return style, nil
}
