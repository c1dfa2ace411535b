package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signal_tracker/internal/helper"
	"signal_tracker/internal/models"
	"signal_tracker/pkg/metrics"
	"signal_tracker/pkg/tracing"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// run: жизнь одной задачи: время входа из таблицы, затем интервалы по порядку.
// Ошибка интервала не прерывает задачу, из реестра задача удаляется на любом выходе.
func (s *Scheduler) run(ctx context.Context, t *task) {
	defer s.wg.Done()
	defer s.remove(t.sig.Row)
	defer t.cancel()
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("resample task panicked", zap.Int("row", t.sig.Row), zap.Any("panic", p))
		}
	}()

	sig := t.sig
	log := s.log.With(zap.Int("row", sig.Row), zap.String("symbol", sig.Symbol))

	span, ctx := tracing.StartSpan(ctx, "resample.task",
		opentracing.Tag{Key: "row", Value: sig.Row},
		opentracing.Tag{Key: "symbol", Value: sig.Symbol},
	)
	defer span.Finish()

	entry, err := s.entryTime(ctx, sig.Row)
	if err != nil {
		tracing.Fail(span, err)
		log.Error("resample task aborted: no entry time", zap.Error(err))
		s.publish(models.Event{Type: models.EventSkip, Row: sig.Row, Symbol: sig.Symbol, Reason: err.Error()})
		return
	}

	for i, iv := range s.opts.Intervals {
		target := iv.Target(entry)
		if d := target.Sub(s.opts.Now()); d > 0 {
			log.Debug("waiting interval", zap.String("interval", iv.Name), zap.Time("target", target))
		}
		if err := s.sleepUntil(ctx, target); err != nil {
			log.Info("resample task cancelled", zap.String("next_interval", iv.Name))
			return
		}
		s.sample(ctx, log, sig, i, iv)
	}

	log.Info("resample task completed")
	s.publish(models.Event{Type: models.EventDone, Row: sig.Row, Symbol: sig.Symbol})
}

// entryTime читает время сигнала обратно из таблицы, а не берёт его из памяти.
func (s *Scheduler) entryTime(ctx context.Context, row int) (time.Time, error) {
	raw, err := s.store.ReadCell(ctx, row, models.ColSignalTime)
	if err != nil {
		return time.Time{}, err
	}
	entry, err := time.ParseInLocation(models.TimeLayout, strings.TrimSpace(raw), s.opts.Location)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse entry time %q", raw)
	}
	return entry, nil
}

// sleepUntil ждёт абсолютного момента target по стенным часам.
// Сон режется на куски по WakeCheck: после засыпания машины время перепроверяется.
// Прошедший target - без ожидания.
func (s *Scheduler) sleepUntil(ctx context.Context, target time.Time) error {
	for {
		d := target.Sub(s.opts.Now())
		if d <= 0 {
			return ctx.Err()
		}
		if d > s.opts.WakeCheck {
			d = s.opts.WakeCheck
		}

		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// sample: один интервал: цена, изменение, запись пары колонок.
func (s *Scheduler) sample(ctx context.Context, log *zap.Logger, sig models.Signal, i int, iv models.Interval) {
	span, ctx := tracing.StartSpan(ctx, "resample.interval", opentracing.Tag{Key: "interval", Value: iv.Name})
	defer span.Finish()

	log = log.With(zap.String("interval", iv.Name))
	skip := func(result string, err error) {
		tracing.Fail(span, err)
		metrics.IntervalsTotal.WithLabelValues(iv.Name, result).Inc()
		log.Warn("interval skipped", zap.String("reason", result), zap.Error(err))
		s.publish(models.Event{
			Type: models.EventSkip, Row: sig.Row, Symbol: sig.Symbol, Action: sig.Action,
			Interval: iv.Name, Reason: fmt.Sprintf("%s: %v", result, err),
		})
	}

	price, err := s.prices.GetPrice(ctx, sig.Symbol)
	if err != nil {
		skip(metrics.ResultFetchFailed, err)
		return
	}

	pct, err := helper.ChangePct(sig.EntryPrice, price, sig.Action)
	if err != nil {
		skip(metrics.ResultBadEntry, err)
		return
	}

	priceCol, pctCol := helper.IntervalColumns(i)
	if err := s.write(ctx, sig.Row, priceCol, pctCol, price, pct); err != nil {
		skip(metrics.ResultStoreFailed, err)
		return
	}

	metrics.IntervalsTotal.WithLabelValues(iv.Name, metrics.ResultSampled).Inc()
	log.Info("interval updated", zap.Float64("price", price), zap.Float64("change_pct", pct))
	s.publish(models.Event{
		Type: models.EventSample, Row: sig.Row, Symbol: sig.Symbol, Action: sig.Action,
		Interval: iv.Name, Price: price, ChangePct: pct,
	})
}

// write: цена, изменение долей (0.1 = 10%), процентный формат, цвет по знаку.
func (s *Scheduler) write(ctx context.Context, row, priceCol, pctCol int, price, pct float64) error {
	if err := s.store.WriteCell(ctx, row, priceCol, models.FormatPrice(price)); err != nil {
		return err
	}
	if err := s.store.WriteCell(ctx, row, pctCol, models.FormatPrice(pct/100)); err != nil {
		return err
	}
	if err := s.store.ApplyNumberFormat(ctx, row, pctCol, models.PercentFormat); err != nil {
		return err
	}
	return s.store.ApplyConditionalColor(ctx, row, pctCol, pct)
}

func (s *Scheduler) publish(ev models.Event) {
	if ev.At.IsZero() {
		ev.At = s.opts.Now()
	}
	s.pub.Publish(ev)
}
