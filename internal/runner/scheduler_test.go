package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"signal_tracker/internal/models"
	"signal_tracker/internal/modules/storage/service"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type priceFunc func(ctx context.Context, symbol string) (float64, error)

func (f priceFunc) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return f(ctx, symbol)
}

func fixedPrice(p float64) priceFunc {
	return func(context.Context, string) (float64, error) { return p, nil }
}

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) Publish(ev models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(t models.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// zeroIntervals: те же интервалы без задержек.
func zeroIntervals() []models.Interval {
	out := make([]models.Interval, 0, len(models.Intervals))
	for _, iv := range models.Intervals {
		out = append(out, models.Interval{Name: iv.Name})
	}
	return out
}

func newSheet(t *testing.T) *service.Sheet {
	t.Helper()
	sheet := service.NewSheet(service.NewMemory(), zap.NewNop())
	require.NoError(t, sheet.EnsureHeader(context.Background()))
	return sheet
}

func appendSignal(t *testing.T, sheet *service.Sheet, sig models.Signal) models.Signal {
	t.Helper()
	row, err := sheet.AppendRow(context.Background(), sig.Fields(time.UTC))
	require.NoError(t, err)
	sig.Row = row
	return sig
}

func cell(t *testing.T, sheet *service.Sheet, row, col int) string {
	t.Helper()
	v, err := sheet.ReadCell(context.Background(), row, col)
	require.NoError(t, err)
	return v
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Len() == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestSchedulerCompletesAllIntervals(t *testing.T) {
	sheet := newSheet(t)
	rec := &recorder{}
	s := NewScheduler(fixedPrice(110), sheet, rec, zap.NewNop(), Options{Intervals: zeroIntervals()})
	defer s.Stop()

	sig := appendSignal(t, sheet, models.Signal{Symbol: "BTC", Action: models.ActionBuy, EntryPrice: 100, EntryTime: time.Now()})
	require.NoError(t, s.Start(sig))
	waitIdle(t, s)

	assert.Empty(t, s.Live())
	for col := models.ColFirstInterval; col <= models.ColumnCount; col += 2 {
		assert.Equal(t, "110", cell(t, sheet, sig.Row, col))
		assert.Equal(t, "0.1", cell(t, sheet, sig.Row, col+1))

		st, err := sheet.ReadStyle(context.Background(), sig.Row, col+1)
		require.NoError(t, err)
		require.NotNil(t, st.NumberFormat)
		assert.Equal(t, models.PercentFormat, *st.NumberFormat)
		require.NotNil(t, st.Background)
		assert.Equal(t, models.ColorGain, *st.Background)
	}
	assert.Equal(t, 6, rec.count(models.EventSample))
	assert.Equal(t, 1, rec.count(models.EventDone))
}

func TestSchedulerSellAndFlatChange(t *testing.T) {
	sheet := newSheet(t)
	s := NewScheduler(fixedPrice(110), sheet, nil, zap.NewNop(), Options{Intervals: zeroIntervals()[:1]})
	defer s.Stop()

	sell := appendSignal(t, sheet, models.Signal{Symbol: "ETH", Action: models.ActionSell, EntryPrice: 100, EntryTime: time.Now()})
	flat := appendSignal(t, sheet, models.Signal{Symbol: "ETH", Action: models.ActionBuy, EntryPrice: 110, EntryTime: time.Now()})
	require.NoError(t, s.Start(sell))
	require.NoError(t, s.Start(flat))
	waitIdle(t, s)

	assert.Equal(t, "-0.1", cell(t, sheet, sell.Row, 6))
	st, err := sheet.ReadStyle(context.Background(), sell.Row, 6)
	require.NoError(t, err)
	require.NotNil(t, st.Background)
	assert.Equal(t, models.ColorLoss, *st.Background)

	assert.Equal(t, "0", cell(t, sheet, flat.Row, 6))
	st, err = sheet.ReadStyle(context.Background(), flat.Row, 6)
	require.NoError(t, err)
	assert.Nil(t, st.Background)
	assert.NotNil(t, st.NumberFormat)
}

func TestSchedulerFetchFailureSkipsOnlyThatInterval(t *testing.T) {
	sheet := newSheet(t)
	rec := &recorder{}
	var calls int32
	prices := priceFunc(func(context.Context, string) (float64, error) {
		if atomic.AddInt32(&calls, 1) == 3 {
			return 0, &models.UpstreamError{Source: "test", StatusCode: 500}
		}
		return 90, nil
	})
	s := NewScheduler(prices, sheet, rec, zap.NewNop(), Options{Intervals: zeroIntervals()})
	defer s.Stop()

	sig := appendSignal(t, sheet, models.Signal{Symbol: "SOL", Action: models.ActionBuy, EntryPrice: 100, EntryTime: time.Now()})
	require.NoError(t, s.Start(sig))
	waitIdle(t, s)

	assert.EqualValues(t, 6, atomic.LoadInt32(&calls))
	for i := 0; i < 6; i++ {
		priceCol := models.ColFirstInterval + 2*i
		if i == 2 {
			assert.Empty(t, cell(t, sheet, sig.Row, priceCol))
			assert.Empty(t, cell(t, sheet, sig.Row, priceCol+1))
			continue
		}
		assert.Equal(t, "90", cell(t, sheet, sig.Row, priceCol))
		assert.Equal(t, "-0.1", cell(t, sheet, sig.Row, priceCol+1))
	}
	assert.Equal(t, 1, rec.count(models.EventSkip))
	assert.Equal(t, 5, rec.count(models.EventSample))
}

// failingStore роняет запись в одну колонку.
type failingStore struct {
	*service.Sheet
	col int
}

func (f failingStore) WriteCell(ctx context.Context, row, col int, value string) error {
	if col == f.col {
		return models.NewStorageError("write_cell", errors.New("quota exceeded"))
	}
	return f.Sheet.WriteCell(ctx, row, col, value)
}

func TestSchedulerStoreFailureSkipsOnlyThatInterval(t *testing.T) {
	sheet := newSheet(t)
	s := NewScheduler(fixedPrice(120), failingStore{Sheet: sheet, col: 5}, nil, zap.NewNop(), Options{Intervals: zeroIntervals()})
	defer s.Stop()

	sig := appendSignal(t, sheet, models.Signal{Symbol: "BTC", Action: models.ActionBuy, EntryPrice: 100, EntryTime: time.Now()})
	require.NoError(t, s.Start(sig))
	waitIdle(t, s)

	assert.Empty(t, cell(t, sheet, sig.Row, 5))
	assert.Empty(t, cell(t, sheet, sig.Row, 6))
	for col := 7; col <= models.ColumnCount; col += 2 {
		assert.Equal(t, "120", cell(t, sheet, sig.Row, col))
		assert.Equal(t, "0.2", cell(t, sheet, sig.Row, col+1))
	}
}

func TestSchedulerBadEntryTimeAbortsTask(t *testing.T) {
	sheet := newSheet(t)
	rec := &recorder{}
	var calls int32
	prices := priceFunc(func(context.Context, string) (float64, error) {
		atomic.AddInt32(&calls, 1)
		return 1, nil
	})
	s := NewScheduler(prices, sheet, rec, zap.NewNop(), Options{Intervals: zeroIntervals()})
	defer s.Stop()

	sig := appendSignal(t, sheet, models.Signal{Symbol: "BTC", Action: models.ActionBuy, EntryPrice: 100, EntryTime: time.Now()})
	require.NoError(t, sheet.WriteCell(context.Background(), sig.Row, models.ColSignalTime, "not a time"))

	require.NoError(t, s.Start(sig))
	waitIdle(t, s)

	assert.Zero(t, atomic.LoadInt32(&calls))
	for col := models.ColFirstInterval; col <= models.ColumnCount; col++ {
		assert.Empty(t, cell(t, sheet, sig.Row, col))
	}
	assert.Equal(t, 1, rec.count(models.EventSkip))
	assert.Zero(t, rec.count(models.EventDone))
}

func TestSchedulerInvalidEntryPriceSkipsEveryInterval(t *testing.T) {
	sheet := newSheet(t)
	rec := &recorder{}
	s := NewScheduler(fixedPrice(100), sheet, rec, zap.NewNop(), Options{Intervals: zeroIntervals()})
	defer s.Stop()

	sig := appendSignal(t, sheet, models.Signal{Symbol: "BTC", Action: models.ActionBuy, EntryPrice: 0, EntryTime: time.Now()})
	require.NoError(t, s.Start(sig))
	waitIdle(t, s)

	for col := models.ColFirstInterval; col <= models.ColumnCount; col++ {
		assert.Empty(t, cell(t, sheet, sig.Row, col))
	}
	assert.Equal(t, 6, rec.count(models.EventSkip))
	assert.Equal(t, 1, rec.count(models.EventDone))
}

// clock: подменяемые стенные часы.
type clock struct{ ns int64 }

func newClock(t time.Time) *clock { return &clock{ns: t.UnixNano()} }
func (c *clock) Now() time.Time   { return time.Unix(0, atomic.LoadInt64(&c.ns)) }
func (c *clock) Set(t time.Time)  { atomic.StoreInt64(&c.ns, t.UnixNano()) }

func TestSchedulerCatchUpThenWaits(t *testing.T) {
	entry := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	clk := newClock(entry.Add(90 * time.Minute))

	sheet := newSheet(t)
	s := NewScheduler(fixedPrice(105), sheet, nil, zap.NewNop(), Options{
		Location:  time.UTC,
		WakeCheck: 5 * time.Millisecond,
		Now:       clk.Now,
	})

	sig := appendSignal(t, sheet, models.Signal{Symbol: "BTC", Action: models.ActionBuy, EntryPrice: 100, EntryTime: entry})
	require.NoError(t, s.Start(sig))

	// 15m и 1h уже прошли: снимаются сразу
	require.Eventually(t, func() bool { return cell(t, sheet, sig.Row, 8) != "" }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, "105", cell(t, sheet, sig.Row, 5))
	assert.Equal(t, "105", cell(t, sheet, sig.Row, 7))

	// 2h ещё впереди
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, cell(t, sheet, sig.Row, 9))
	assert.Equal(t, []int{sig.Row}, s.Live())

	s.Stop()
	assert.Zero(t, s.Len())
	assert.Empty(t, cell(t, sheet, sig.Row, 9))
}

func TestSchedulerRechecksClockAfterWake(t *testing.T) {
	entry := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	clk := newClock(entry.Add(90 * time.Minute))

	sheet := newSheet(t)
	s := NewScheduler(fixedPrice(105), sheet, nil, zap.NewNop(), Options{
		Location:  time.UTC,
		WakeCheck: 5 * time.Millisecond,
		Now:       clk.Now,
	})
	defer s.Stop()

	sig := appendSignal(t, sheet, models.Signal{Symbol: "BTC", Action: models.ActionBuy, EntryPrice: 100, EntryTime: entry})
	require.NoError(t, s.Start(sig))
	require.Eventually(t, func() bool { return cell(t, sheet, sig.Row, 8) != "" }, 5*time.Second, 5*time.Millisecond)

	// машина "проснулась" через пять дней
	clk.Set(entry.Add(5 * 24 * time.Hour))
	waitIdle(t, s)

	for col := models.ColFirstInterval; col <= models.ColumnCount; col++ {
		assert.NotEmpty(t, cell(t, sheet, sig.Row, col), "col %d", col)
	}
}

func TestSchedulerCancelSingleTask(t *testing.T) {
	entry := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	sheet := newSheet(t)
	s := NewScheduler(fixedPrice(1), sheet, nil, zap.NewNop(), Options{
		Location:  time.UTC,
		WakeCheck: time.Hour,
		Now:       func() time.Time { return entry },
	})
	defer s.Stop()

	a := appendSignal(t, sheet, models.Signal{Symbol: "BTC", Action: models.ActionBuy, EntryPrice: 1, EntryTime: entry})
	b := appendSignal(t, sheet, models.Signal{Symbol: "BTC", Action: models.ActionSell, EntryPrice: 1, EntryTime: entry})
	require.NoError(t, s.Start(a))
	require.NoError(t, s.Start(b))
	assert.Equal(t, []int{a.Row, b.Row}, s.Live())

	assert.True(t, s.Cancel(a.Row))
	require.Eventually(t, func() bool { return s.Len() == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{b.Row}, s.Live())
	assert.False(t, s.Cancel(a.Row))
}

func TestSchedulerStartErrors(t *testing.T) {
	entry := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	sheet := newSheet(t)
	s := NewScheduler(fixedPrice(1), sheet, nil, zap.NewNop(), Options{
		Location: time.UTC,
		Now:      func() time.Time { return entry },
	})

	sig := appendSignal(t, sheet, models.Signal{Symbol: "BTC", Action: models.ActionBuy, EntryPrice: 1, EntryTime: entry})
	require.NoError(t, s.Start(sig))

	err := s.Start(sig)
	assert.True(t, errors.Is(err, ErrTaskExists))

	err = s.Start(models.Signal{Row: 99, Symbol: " "})
	assert.True(t, errors.Is(err, models.ErrInvalidSymbol))

	assert.Error(t, s.Start(models.Signal{Row: 0, Symbol: "BTC"}))

	s.Stop()
	assert.Zero(t, s.Len())
	err = s.Start(models.Signal{Row: 100, Symbol: "BTC"})
	assert.True(t, errors.Is(err, ErrStopped))
}

func TestSleepUntil(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewScheduler(nil, nil, nil, zap.NewNop(), Options{
		WakeCheck: time.Millisecond,
		Now:       func() time.Time { return now },
	})
	defer s.Stop()

	start := time.Now()
	require.NoError(t, s.sleepUntil(context.Background(), now.Add(-time.Hour)))
	require.NoError(t, s.sleepUntil(context.Background(), now))
	assert.Less(t, time.Since(start), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := s.sleepUntil(ctx, now.Add(time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}
