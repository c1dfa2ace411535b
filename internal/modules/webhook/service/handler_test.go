package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"signal_tracker/internal/models"
	storage "signal_tracker/internal/modules/storage/service"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePrices struct {
	price float64
	err   error
}

func (f fakePrices) GetPrice(context.Context, string) (float64, error) { return f.price, f.err }

type fakeMarket struct{ md models.MarketData }

func (f fakeMarket) GetMarketData(context.Context, string) models.MarketData { return f.md }

type fakeNotifier struct {
	mu    sync.Mutex
	chats []string
	texts []string
}

func (f *fakeNotifier) Send(_ context.Context, chatID, text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, chatID)
	f.texts = append(f.texts, text)
	return false
}

type fakeScheduler struct {
	mu      sync.Mutex
	started []models.Signal
}

func (f *fakeScheduler) Start(sig models.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, sig)
	return nil
}

type fakeTracker struct{ at time.Time }

func (f *fakeTracker) TouchSignal(t time.Time) { f.at = t }

type fixture struct {
	proc     *Processor
	engine   *gin.Engine
	sheet    *storage.Sheet
	notifier *fakeNotifier
	sched    *fakeScheduler
	tracker  *fakeTracker
}

var moscow = time.FixedZone("MSK", 3*60*60)

func newFixture(t *testing.T, prices fakePrices, md models.MarketData) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sheet := storage.NewSheet(storage.NewMemory(), zap.NewNop())
	require.NoError(t, sheet.EnsureHeader(context.Background()))

	f := &fixture{
		sheet:    sheet,
		notifier: &fakeNotifier{},
		sched:    &fakeScheduler{},
		tracker:  &fakeTracker{},
	}
	f.proc = NewProcessor(Deps{
		Prices:    prices,
		Market:    fakeMarket{md: md},
		Notifier:  f.notifier,
		Store:     sheet,
		Scheduler: f.sched,
		Tracker:   f.tracker,
	}, Config{ChatID: "-100123", Location: moscow}, zap.NewNop())
	f.proc.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 500, time.UTC) }
	t.Cleanup(f.proc.Close)

	f.engine = gin.New()
	f.engine.POST("/webhookbybit", f.proc.Handle)
	return f
}

func (f *fixture) post(body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhookbybit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	f.engine.ServeHTTP(w, req)
	return w
}

func TestWebhookSuccess(t *testing.T) {
	mc, vol := 1.3e12, 2.5e10
	f := newFixture(t, fakePrices{price: 65000.5}, models.MarketData{MarketCap: &mc, Volume24h: &vol})

	w := f.post(`{"ticker":"BTCUSDT.P","strategy.order.action":"BUY","extra":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Status string `json:"status"`
		Row    int    `json:"row"`
	}
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 2, resp.Row)

	fields, err := f.sheet.ReadRow(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC", "buy", "65000.5", "2024-05-06 10:08:09"}, fields[:4])
	for _, v := range fields[4:] {
		assert.Empty(t, v)
	}

	require.Len(t, f.sched.started, 1)
	sig := f.sched.started[0]
	assert.Equal(t, 2, sig.Row)
	assert.Equal(t, "BTC", sig.Symbol)
	assert.Equal(t, models.ActionBuy, sig.Action)
	assert.Equal(t, 65000.5, sig.EntryPrice)
	assert.False(t, f.tracker.at.IsZero())

	// уведомление не доставлено, но сигнал записан
	f.proc.Wait()
	require.Len(t, f.notifier.texts, 1)
	assert.Equal(t, "-100123", f.notifier.chats[0])
	assert.Contains(t, f.notifier.texts[0], "🟢 *BUY*")
	assert.Contains(t, f.notifier.texts[0], "MARKET CAP - *1,300,000,000,000$*")
}

func TestWebhookDegradedMarketData(t *testing.T) {
	f := newFixture(t, fakePrices{price: 3000}, models.MarketData{})

	w := f.post(`{"ticker":"ethusdt","strategy.order.action":"sell"}`)
	require.Equal(t, http.StatusOK, w.Code)

	f.proc.Wait()
	require.Len(t, f.notifier.texts, 1)
	assert.Contains(t, f.notifier.texts[0], "🔴 *SELL*")
	assert.Contains(t, f.notifier.texts[0], "24H VOLUME - *N/A$*")
}

func TestWebhookBadRequests(t *testing.T) {
	bodies := map[string]string{
		"invalid json":   `{"ticker":`,
		"missing ticker": `{"strategy.order.action":"buy"}`,
		"missing action": `{"ticker":"BTCUSDT"}`,
		"unknown action": `{"ticker":"BTCUSDT","strategy.order.action":"hold"}`,
		"empty symbol":   `{"ticker":"USDT","strategy.order.action":"buy"}`,
	}
	for name, body := range bodies {
		body := body
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, fakePrices{price: 1}, models.MarketData{})
			w := f.post(body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Empty(t, f.sched.started)

			n, err := f.sheet.RowCount(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestWebhookPriceFailures(t *testing.T) {
	cases := map[string]struct {
		err  error
		code int
	}{
		"http":       {err: &models.UpstreamError{Source: "bybit", StatusCode: 500}, code: http.StatusBadGateway},
		"structural": {err: &models.UpstreamError{Source: "bybit", Reason: "empty result"}, code: http.StatusServiceUnavailable},
	}
	for name, c := range cases {
		c := c
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, fakePrices{err: c.err}, models.MarketData{})
			w := f.post(`{"ticker":"BTCUSDT","strategy.order.action":"buy"}`)
			assert.Equal(t, c.code, w.Code)

			f.proc.Wait()
			assert.Empty(t, f.notifier.texts)
			assert.Empty(t, f.sched.started)
		})
	}
}

func TestWebhookStoreUnavailable(t *testing.T) {
	f := newFixture(t, fakePrices{price: 1}, models.MarketData{})
	require.NoError(t, f.sheet.Close())

	w := f.post(`{"ticker":"BTCUSDT","strategy.order.action":"buy"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, f.sched.started)
}

// cancellingMarket рвёт запрос отправителя посреди обработки.
type cancellingMarket struct{ cancel context.CancelFunc }

func (m cancellingMarket) GetMarketData(context.Context, string) models.MarketData {
	m.cancel()
	return models.MarketData{}
}

func TestWebhookRecordsSignalAfterClientDisconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	backend, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "signals.db"), "signals")
	require.NoError(t, err)
	sheet := storage.NewSheet(backend, zap.NewNop())
	t.Cleanup(func() { _ = sheet.Close() })
	require.NoError(t, sheet.EnsureHeader(ctx))

	reqCtx, disconnect := context.WithCancel(ctx)
	defer disconnect()

	notifier := &fakeNotifier{}
	sched := &fakeScheduler{}
	proc := NewProcessor(Deps{
		Prices:    fakePrices{price: 3000},
		Market:    cancellingMarket{cancel: disconnect},
		Notifier:  notifier,
		Store:     sheet,
		Scheduler: sched,
	}, Config{ChatID: "-100123", Location: moscow}, zap.NewNop())
	t.Cleanup(proc.Close)

	engine := gin.New()
	engine.POST("/webhookbybit", proc.Handle)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhookbybit",
		strings.NewReader(`{"ticker":"ETHUSDT","strategy.order.action":"buy"}`)).WithContext(reqCtx)
	engine.ServeHTTP(w, req)

	require.Error(t, reqCtx.Err())
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	n, err := sheet.RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	fields, err := sheet.ReadRow(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"ETH", "buy", "3000"}, fields[:3])
	require.Len(t, sched.started, 1)
	assert.Equal(t, 2, sched.started[0].Row)
}
