package service

import (
	"context"
	"sync"
	"time"

	"signal_tracker/internal/helper"
	"signal_tracker/internal/models"
	telegram "signal_tracker/internal/modules/telegram_bot/service"
	"signal_tracker/pkg/metrics"
	"signal_tracker/pkg/tracing"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

type MarketDataSource interface {
	GetMarketData(ctx context.Context, ticker string) models.MarketData
}

type Notifier interface {
	Send(ctx context.Context, chatID string, text string) bool
}

type Store interface {
	AppendRow(ctx context.Context, fields []string) (int, error)
}

type Scheduler interface {
	Start(sig models.Signal) error
}

type Publisher interface {
	Publish(ev models.Event)
}

type Tracker interface {
	TouchSignal(t time.Time)
}

// Payload: тело вебхука TradingView. Ключ действия с точками, как в алерте.
type Payload struct {
	Ticker string `json:"ticker"`
	Action string `json:"strategy.order.action"`
}

type Deps struct {
	Prices    PriceSource
	Market    MarketDataSource
	Notifier  Notifier
	Store     Store
	Scheduler Scheduler
	Publisher Publisher
	Tracker   Tracker
}

type Config struct {
	ChatID   string
	Location *time.Location
	// потолок на отправку уведомления в фоне
	NotifyTimeout time.Duration
	// потолок на обработку сигнала, отвязанной от соединения отправителя
	ProcessTimeout time.Duration
}

// Processor: обработка одного сигнала: данные рынка, цена, уведомление,
// строка в таблице, задача пересэмплирования.
type Processor struct {
	deps Deps
	cfg  Config
	log  *zap.Logger
	now  func() time.Time

	// фоновые уведомления
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

func NewProcessor(deps Deps, cfg Config, log *zap.Logger) *Processor {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = time.Minute
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Processor{
		deps:     deps,
		cfg:      cfg,
		log:      log.Named("webhook"),
		now:      time.Now,
		bgCtx:    ctx,
		bgCancel: cancel,
	}
}

// Process записывает сигнал и запускает для него задачу.
// Ошибка цены или хранилища прерывает сигнал, уведомление на результат не влияет.
func (p *Processor) Process(ctx context.Context, in Payload) (sig models.Signal, err error) {
	span, ctx := tracing.StartSpan(ctx, "webhook.process", opentracing.Tag{Key: "ticker", Value: in.Ticker})
	defer func() {
		tracing.Fail(span, err)
		span.Finish()
	}()

	symbol, err := helper.NormSymbol(helper.ExtractSymbol(in.Ticker))
	if err != nil {
		return models.Signal{}, err
	}
	action, err := models.ParseAction(in.Action)
	if err != nil {
		return models.Signal{}, err
	}
	log := p.log.With(zap.String("symbol", symbol), zap.String("action", string(action)))
	log.Info("processing signal", zap.String("ticker", in.Ticker))

	md := p.deps.Market.GetMarketData(ctx, symbol)
	price, err := p.deps.Prices.GetPrice(ctx, symbol)
	if err != nil {
		log.Error("price fetch failed", zap.Error(err))
		return models.Signal{}, err
	}

	sig = models.Signal{
		Symbol:     symbol,
		Action:     action,
		EntryPrice: price,
		EntryTime:  p.now().In(p.cfg.Location).Truncate(time.Second),
	}
	p.notify(telegram.FormatSignal(action, symbol, price, md))

	sig.Row, err = p.deps.Store.AppendRow(ctx, sig.Fields(p.cfg.Location))
	if err != nil {
		log.Error("append row failed", zap.Error(err))
		return models.Signal{}, err
	}
	log = log.With(zap.Int("row", sig.Row))

	metrics.SignalsTotal.WithLabelValues(string(action)).Inc()
	if p.deps.Tracker != nil {
		p.deps.Tracker.TouchSignal(sig.EntryTime)
	}
	if p.deps.Publisher != nil {
		p.deps.Publisher.Publish(models.Event{
			Type: models.EventSignal, Row: sig.Row, Symbol: symbol, Action: action,
			Price: price, At: sig.EntryTime,
		})
	}

	if err := p.deps.Scheduler.Start(sig); err != nil {
		log.Error("resample task not started", zap.Error(err))
		return sig, errors.Wrap(err, "start resample task")
	}
	log.Info("signal recorded", zap.Float64("price", price))
	return sig, nil
}

// notify шлёт уведомление в фоне: ответ вебхуку его не ждёт.
func (p *Processor) notify(text string) {
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		ctx, cancel := context.WithTimeout(p.bgCtx, p.cfg.NotifyTimeout)
		defer cancel()
		if !p.deps.Notifier.Send(ctx, p.cfg.ChatID, text) {
			p.log.Warn("notification not delivered")
		}
	}()
}

// Wait ждёт фоновые уведомления.
func (p *Processor) Wait() {
	p.bg.Wait()
}

// Close прерывает ожидание ретраев уведомлений и ждёт их выхода.
func (p *Processor) Close() {
	p.bgCancel()
	p.bg.Wait()
}
