package runner

import (
	"context"
	"sort"
	"sync"
	"time"

	"signal_tracker/internal/helper"
	"signal_tracker/internal/models"
	"signal_tracker/pkg/metrics"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrStopped    = errors.New("scheduler is stopped")
	ErrTaskExists = errors.New("resample task already running for row")
)

// PriceSource: текущая цена символа.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// Store: то, что задаче нужно от таблицы.
type Store interface {
	ReadCell(ctx context.Context, row, col int) (string, error)
	WriteCell(ctx context.Context, row, col int, value string) error
	ApplyNumberFormat(ctx context.Context, row, col int, format models.NumberFormat) error
	ApplyConditionalColor(ctx context.Context, row, col int, value float64) error
}

// Publisher получает события задач (живая лента /ws).
type Publisher interface {
	Publish(ev models.Event)
}

type Options struct {
	Intervals []models.Interval
	// пояс, в котором записано время сигнала
	Location *time.Location
	// максимальный непрерывный сон: после него часы перепроверяются
	WakeCheck time.Duration
	Now       func() time.Time
}

type task struct {
	sig       models.Signal
	cancel    context.CancelFunc
	startedAt time.Time
}

// Scheduler держит по одной задаче пересэмплирования на строку таблицы.
// Задачи живут только в памяти процесса и теряются при рестарте.
type Scheduler struct {
	prices PriceSource
	store  Store
	pub    Publisher
	log    *zap.Logger
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	tasks   map[int]*task
	stopped bool
}

func NewScheduler(prices PriceSource, store Store, pub Publisher, log *zap.Logger, opts Options) *Scheduler {
	if opts.Intervals == nil {
		opts.Intervals = models.Intervals
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.WakeCheck <= 0 {
		opts.WakeCheck = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if pub == nil {
		pub = nopPublisher{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		prices: prices,
		store:  store,
		pub:    pub,
		log:    log.Named("scheduler"),
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[int]*task),
	}
}

// Start запускает задачу для уже записанной строки sig.Row.
func (s *Scheduler) Start(sig models.Signal) error {
	if sig.Row < 1 {
		return errors.Errorf("bad row %d", sig.Row)
	}
	symbol, err := helper.NormSymbol(sig.Symbol)
	if err != nil {
		return err
	}
	sig.Symbol = symbol

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if _, ok := s.tasks[sig.Row]; ok {
		return errors.Wrapf(ErrTaskExists, "row %d", sig.Row)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	t := &task{sig: sig, cancel: cancel, startedAt: s.opts.Now()}
	s.tasks[sig.Row] = t
	metrics.LiveTasks.Set(float64(len(s.tasks)))

	s.wg.Add(1)
	go s.run(ctx, t)

	s.log.Info("resample task started",
		zap.Int("row", sig.Row),
		zap.String("symbol", sig.Symbol),
		zap.String("action", string(sig.Action)),
		zap.Float64("entry_price", sig.EntryPrice),
	)
	return nil
}

// Cancel останавливает задачу строки. false - такой задачи нет.
func (s *Scheduler) Cancel(row int) bool {
	s.mu.Lock()
	t, ok := s.tasks[row]
	s.mu.Unlock()
	if ok {
		t.cancel()
	}
	return ok
}

// Stop отменяет все задачи и ждёт их выхода. Новые задачи после этого не стартуют.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	live := len(s.tasks)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped", zap.Int("cancelled", live))
}

// Live: строки с живыми задачами, по возрастанию.
func (s *Scheduler) Live() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]int, 0, len(s.tasks))
	for row := range s.tasks {
		rows = append(rows, row)
	}
	sort.Ints(rows)
	return rows
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) remove(row int) {
	s.mu.Lock()
	delete(s.tasks, row)
	n := len(s.tasks)
	s.mu.Unlock()
	metrics.LiveTasks.Set(float64(n))
}

type nopPublisher struct{}

func (nopPublisher) Publish(models.Event) {}
