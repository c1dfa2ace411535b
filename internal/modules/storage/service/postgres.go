package service

import (
	"context"

	"signal_tracker/internal/models"
	"signal_tracker/pkg/db"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS sheet_cells (
	sheet         TEXT    NOT NULL,
	row_index     INTEGER NOT NULL,
	col           INTEGER NOT NULL,
	value         TEXT    NOT NULL DEFAULT '',
	number_format JSONB,
	background    JSONB,
	PRIMARY KEY (sheet, row_index, col)
)`

// Postgres: та же раскладка ячеек, что и в sqlite.
type Postgres struct {
	tm    db.TxManager
	sheet string
}

func NewPostgres(ctx context.Context, tm db.TxManager, sheet string) (*Postgres, error) {
	if _, err := tm.Conn().Exec(ctx, postgresSchema); err != nil {
		return nil, errors.Wrap(err, "migrate")
	}
	return &Postgres{tm: tm, sheet: sheet}, nil
}

func (p *Postgres) AppendRow(ctx context.Context, fields []string) (int, error) {
	values, err := padRow(fields)
	if err != nil {
		return 0, err
	}

	var row int
	err = p.tm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		// номер строки выдаётся под блокировкой листа до конца транзакции
		if _, err := tx.Exec(ctxTx, `SELECT pg_advisory_xact_lock(hashtext($1))`, p.sheet); err != nil {
			return errors.Wrap(err, "lock sheet")
		}
		if err := tx.QueryRow(ctxTx,
			`SELECT COALESCE(MAX(row_index), 0) FROM sheet_cells WHERE sheet = $1`, p.sheet,
		).Scan(&row); err != nil {
			return errors.Wrap(err, "count rows")
		}
		row++

		batch := &pgx.Batch{}
		for i, v := range values {
			batch.Queue(`INSERT INTO sheet_cells (sheet, row_index, col, value) VALUES ($1, $2, $3, $4)`,
				p.sheet, row, i+1, v)
		}
		return errors.Wrap(tx.SendBatch(ctxTx, batch).Close(), "insert row")
	})
	if err != nil {
		return 0, err
	}
	return row, nil
}

func (p *Postgres) RowCount(ctx context.Context) (int, error) {
	var n int
	err := p.tm.Conn().QueryRow(ctx,
		`SELECT COALESCE(MAX(row_index), 0) FROM sheet_cells WHERE sheet = $1`, p.sheet,
	).Scan(&n)
	return n, errors.Wrap(err, "count rows")
}

func (p *Postgres) ReadRow(ctx context.Context, row int) ([]string, error) {
	if err := checkCell(row, 1); err != nil {
		return nil, err
	}
	rows, err := p.tm.Conn().Query(ctx,
		`SELECT col, value FROM sheet_cells WHERE sheet = $1 AND row_index = $2`, p.sheet, row)
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

func (p *Postgres) ReadCell(ctx context.Context, row, col int) (string, error) {
	if err := checkCell(row, col); err != nil {
		return "", err
	}
	var value string
	err := p.tm.Conn().QueryRow(ctx,
		`SELECT value FROM sheet_cells WHERE sheet = $1 AND row_index = $2 AND col = $3`, p.sheet, row, col,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return value, errors.Wrap(err, "select cell")
}

func (p *Postgres) ReadStyle(ctx context.Context, row, col int) (models.CellStyle, error) {
	if err := checkCell(row, col); err != nil {
		return models.CellStyle{}, err
	}
	var format, background *string
	err := p.tm.Conn().QueryRow(ctx,
		`SELECT number_format::text, background::text FROM sheet_cells WHERE sheet = $1 AND row_index = $2 AND col = $3`,
		p.sheet, row, col,
	).Scan(&format, &background)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.CellStyle{}, nil
	}
	if err != nil {
		return models.CellStyle{}, errors.Wrap(err, "select style")
	}
	return decodeStyle(deref(format), deref(background))
}

func (p *Postgres) WriteCell(ctx context.Context, row, col int, value string) error {
	return p.upsert(ctx, row, col, "value", value)
}

func (p *Postgres) ApplyNumberFormat(ctx context.Context, row, col int, format models.NumberFormat) error {
	raw, err := sonic.MarshalString(format)
	if err != nil {
		return errors.Wrap(err, "encode number format")
	}
	return p.upsert(ctx, row, col, "number_format", raw)
}

func (p *Postgres) ApplyBackground(ctx context.Context, row, col int, color models.Color) error {
	raw, err := sonic.MarshalString(color)
	if err != nil {
		return errors.Wrap(err, "encode color")
	}
	return p.upsert(ctx, row, col, "background", raw)
}

func (p *Postgres) upsert(ctx context.Context, row, col int, field, value string) error {
	if err := checkCell(row, col); err != nil {
		return err
	}
	cast := ""
	if field != "value" {
		cast = "::jsonb"
	}
	_, err := p.tm.Conn().Exec(ctx,
		`INSERT INTO sheet_cells (sheet, row_index, col, `+field+`) VALUES ($1, $2, $3, $4`+cast+`)
		ON CONFLICT (sheet, row_index, col) DO UPDATE SET `+field+` = excluded.`+field,
		p.sheet, row, col, value)
	return errors.Wrapf(err, "upsert %s", field)
}

func (p *Postgres) Close() error {
	p.tm.Close()
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
