package service

import (
	"context"
	"testing"

	"signal_tracker/internal/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEnsureHeaderOnEmptyTable(t *testing.T) {
	ctx := context.Background()
	s := NewSheet(NewMemory(), zap.NewNop())

	require.NoError(t, s.EnsureHeader(ctx))

	header, err := s.ReadRow(ctx, models.HeaderRow)
	require.NoError(t, err)
	assert.Equal(t, models.ColumnHeaders, header)

	// повторный вызов ничего не дописывает
	require.NoError(t, s.EnsureHeader(ctx))
	n, err := s.RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	row, err := s.AppendRow(ctx, []string{"BTC"})
	require.NoError(t, err)
	assert.Equal(t, 2, row)
}

func TestEnsureHeaderRewritesMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewSheet(NewMemory(), zap.NewNop())

	_, err := s.AppendRow(ctx, []string{"Ticker", "Side"})
	require.NoError(t, err)
	_, err = s.AppendRow(ctx, []string{"BTC", "buy"})
	require.NoError(t, err)

	require.NoError(t, s.EnsureHeader(ctx))

	header, err := s.ReadRow(ctx, models.HeaderRow)
	require.NoError(t, err)
	assert.Equal(t, models.ColumnHeaders, header)

	data, err := s.ReadRow(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "BTC", data[0])
}

func TestEnsureHeaderKeepsSignalInFirstRow(t *testing.T) {
	ctx := context.Background()
	s := NewSheet(NewMemory(), zap.NewNop())

	signal := []string{"BTC", "buy", "65000", "2024-05-06 10:08:09", "65100", "0.0015"}
	_, err := s.AppendRow(ctx, signal)
	require.NoError(t, err)

	require.NoError(t, s.EnsureHeader(ctx))

	first, err := s.ReadRow(ctx, models.HeaderRow)
	require.NoError(t, err)
	assert.Equal(t, signal, first[:len(signal)])

	n, err := s.RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestApplyConditionalColor(t *testing.T) {
	ctx := context.Background()
	s := NewSheet(NewMemory(), zap.NewNop())
	row, err := s.AppendRow(ctx, nil)
	require.NoError(t, err)

	cases := []struct {
		col   int
		value float64
		want  *models.Color
	}{
		{col: 6, value: 1.5, want: &models.ColorGain},
		{col: 8, value: -0.2, want: &models.ColorLoss},
		{col: 10, value: 0, want: nil},
	}
	for _, c := range cases {
		require.NoError(t, s.ApplyConditionalColor(ctx, row, c.col, c.value))
		st, err := s.ReadStyle(ctx, row, c.col)
		require.NoError(t, err)
		assert.Equal(t, c.want, st.Background, "value %v", c.value)
	}
}

func TestSheetWrapsStorageErrors(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	s := NewSheet(b, zap.NewNop())
	require.NoError(t, b.Close())

	_, err := s.AppendRow(ctx, []string{"BTC"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrStorage))

	var se *models.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "append_row", se.Op)

	err = s.WriteCell(ctx, 1, 1, "x")
	assert.True(t, errors.Is(err, models.ErrStorage))
	assert.True(t, errors.Is(err, errClosed))
}
