package service

import (
	"time"

	"signal_tracker/internal/models"
	"signal_tracker/pkg/metrics"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type TaskLister interface {
	Live() []int
}

type Publisher interface {
	Publish(ev models.Event)
}

// Status: периодическая сводка по живым задачам: лог, метрика, событие в ленту.
type Status struct {
	tasks TaskLister
	pub   Publisher
	log   *zap.Logger
	now   func() time.Time

	cron *cron.Cron
}

func NewStatus(tasks TaskLister, pub Publisher, loc *time.Location, log *zap.Logger) *Status {
	if loc == nil {
		loc = time.UTC
	}
	return &Status{
		tasks: tasks,
		pub:   pub,
		log:   log.Named("housekeeping"),
		now:   time.Now,
		cron:  cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
	}
}

// Register вешает Report на расписание spec (с секундами: "0 */15 * * * *").
func (s *Status) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.Report); err != nil {
		return errors.Wrapf(err, "register status job %q", spec)
	}
	return nil
}

func (s *Status) Report() {
	rows := s.tasks.Live()
	metrics.LiveTasks.Set(float64(len(rows)))
	s.log.Info("live resample tasks", zap.Int("count", len(rows)), zap.Ints("rows", rows))
	s.pub.Publish(models.Event{Type: models.EventStatus, LiveTasks: len(rows), At: s.now()})
}

func (s *Status) Start() {
	s.cron.Start()
}

// Stop ждёт завершения уже запущенного Report.
func (s *Status) Stop() {
	<-s.cron.Stop().Done()
}
