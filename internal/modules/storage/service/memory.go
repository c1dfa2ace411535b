package service

import (
	"context"
	"sync"

	"signal_tracker/internal/models"
)

type memCell struct {
	value string
	style models.CellStyle
}

// Memory: таблица в памяти процесса. Для тестов и storage.driver=memory.
type Memory struct {
	mu     sync.RWMutex
	rows   [][]memCell
	closed bool
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) AppendRow(_ context.Context, fields []string) (int, error) {
	row, err := padRow(fields)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errClosed
	}

	cells := make([]memCell, models.ColumnCount)
	for i, v := range row {
		cells[i].value = v
	}
	m.rows = append(m.rows, cells)
	return len(m.rows), nil
}

func (m *Memory) RowCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, errClosed
	}
	return len(m.rows), nil
}

func (m *Memory) ReadRow(_ context.Context, row int) ([]string, error) {
	if err := checkCell(row, 1); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}
	if row > len(m.rows) {
		return nil, nil
	}
	out := make([]string, models.ColumnCount)
	for i, c := range m.rows[row-1] {
		out[i] = c.value
	}
	return out, nil
}

func (m *Memory) ReadCell(_ context.Context, row, col int) (string, error) {
	if err := checkCell(row, col); err != nil {
		return "", err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", errClosed
	}
	if row > len(m.rows) {
		return "", nil
	}
	return m.rows[row-1][col-1].value, nil
}

func (m *Memory) ReadStyle(_ context.Context, row, col int) (models.CellStyle, error) {
	if err := checkCell(row, col); err != nil {
		return models.CellStyle{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return models.CellStyle{}, errClosed
	}
	if row > len(m.rows) {
		return models.CellStyle{}, nil
	}
	return m.rows[row-1][col-1].style, nil
}

func (m *Memory) WriteCell(_ context.Context, row, col int, value string) error {
	return m.update(row, col, func(c *memCell) { c.value = value })
}

func (m *Memory) ApplyNumberFormat(_ context.Context, row, col int, format models.NumberFormat) error {
	return m.update(row, col, func(c *memCell) { c.style.NumberFormat = &format })
}

func (m *Memory) ApplyBackground(_ context.Context, row, col int, color models.Color) error {
	return m.update(row, col, func(c *memCell) { c.style.Background = &color })
}

// update: запись в ячейку; строки за концом таблицы создаются пустыми.
func (m *Memory) update(row, col int, fn func(c *memCell)) error {
	if err := checkCell(row, col); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	for len(m.rows) < row {
		m.rows = append(m.rows, make([]memCell, models.ColumnCount))
	}
	fn(&m.rows[row-1][col-1])
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
