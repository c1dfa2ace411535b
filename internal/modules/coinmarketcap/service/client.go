package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"signal_tracker/internal/helper"
	"signal_tracker/internal/models"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const apiKeyHeader = "X-CMC_PRO_API_KEY"

type Config struct {
	BaseURL string
	// каталог /cryptocurrency/map есть только в v1; пусто - BaseURL с v2 заменённым на v1
	CatalogURL string
	APIKey     string
	Retries    int
	Delay      time.Duration
	Timeout    time.Duration
	UseCatalog bool
}

// Client: рыночные данные CoinMarketCap.
// Ошибок наружу не отдаёт: при любой неудаче возвращает пустой MarketData.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger

	// sleep подменяется в тестах
	sleep func(ctx context.Context, d time.Duration) error

	group   singleflight.Group
	mu      sync.RWMutex
	catalog map[string]int // SYMBOL -> id, nil пока не загружен
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CatalogURL == "" {
		cfg.CatalogURL = catalogBase(cfg.BaseURL)
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		log:   log.Named("coinmarketcap"),
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func catalogBase(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v2") {
		return strings.TrimSuffix(base, "/v2") + "/v1"
	}
	return base
}

// errStructural: ответ пришёл, но разобрать его нельзя. Ретраи бессмысленны.
var errStructural = errors.New("unexpected response shape")

type quotesResp struct {
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
	Data map[string]json.RawMessage `json:"data"`
}

type coinQuote struct {
	ID     int    `json:"id"`
	Symbol string `json:"symbol"`
	Quote  map[string]struct {
		MarketCap *float64 `json:"market_cap"`
		Volume24h *float64 `json:"volume_24h"`
	} `json:"quote"`
}

// GetMarketData: капитализация и объём для тикера (суффиксы срезаются).
// Повторяет запрос при сетевой ошибке или пустых полях, при кривом ответе сдаётся сразу.
func (c *Client) GetMarketData(ctx context.Context, ticker string) models.MarketData {
	symbol, err := helper.NormSymbol(helper.ExtractSymbol(ticker))
	if err != nil {
		c.log.Warn("market data: bad symbol", zap.String("ticker", ticker))
		return models.MarketData{}
	}

	q := c.query(ctx, symbol)

	for attempt := 1; attempt <= c.cfg.Retries; attempt++ {
		md, err := c.fetchQuote(ctx, symbol, q)
		switch {
		case err == nil && md.Complete():
			return md
		case errors.Is(err, errStructural):
			c.log.Error("market data: unexpected response", zap.String("symbol", symbol), zap.Error(err))
			return models.MarketData{}
		case err != nil:
			c.log.Error("market data: request failed", zap.String("symbol", symbol), zap.Int("attempt", attempt), zap.Error(err))
		default:
			c.log.Warn("market data: fields missing", zap.String("symbol", symbol), zap.Int("attempt", attempt))
		}

		if attempt < c.cfg.Retries {
			if err := c.sleep(ctx, c.cfg.Delay); err != nil {
				return models.MarketData{}
			}
		}
	}
	return models.MarketData{}
}

// query: по id из каталога, если он есть, иначе по символу.
func (c *Client) query(ctx context.Context, symbol string) url.Values {
	q := url.Values{}
	q.Set("convert", "USD")
	if c.cfg.UseCatalog {
		if id, ok := c.lookupID(ctx, symbol); ok {
			q.Set("id", strconv.Itoa(id))
			return q
		}
	}
	q.Set("symbol", symbol)
	return q
}

func (c *Client) fetchQuote(ctx context.Context, symbol string, q url.Values) (models.MarketData, error) {
	body, err := c.get(ctx, c.cfg.BaseURL, "/cryptocurrency/quotes/latest", q)
	if err != nil {
		return models.MarketData{}, err
	}

	var payload quotesResp
	if err := sonic.Unmarshal(body, &payload); err != nil {
		return models.MarketData{}, errors.Wrap(errStructural, err.Error())
	}
	if len(payload.Data) == 0 {
		return models.MarketData{}, errors.Wrapf(errStructural, "no data for %s", symbol)
	}

	coin, err := pickCoin(payload.Data, symbol, q.Get("id"))
	if err != nil {
		return models.MarketData{}, err
	}
	usd, ok := coin.Quote["USD"]
	if !ok {
		return models.MarketData{}, errors.Wrapf(errStructural, "no USD quote for %s", symbol)
	}
	return models.MarketData{MarketCap: usd.MarketCap, Volume24h: usd.Volume24h}, nil
}

// pickCoin: data.<KEY>: сначала ключ символа или id, иначе первый по порядку.
// Значение бывает объектом (v1, запрос по id) или списком (v2, по символу).
func pickCoin(data map[string]json.RawMessage, keys ...string) (coinQuote, error) {
	var raw json.RawMessage
	for _, k := range keys {
		if v, ok := data[k]; ok && k != "" {
			raw = v
			break
		}
	}
	if raw == nil {
		names := make([]string, 0, len(data))
		for k := range data {
			names = append(names, k)
		}
		sort.Strings(names)
		raw = data[names[0]]
	}

	var coin coinQuote
	if err := sonic.Unmarshal(raw, &coin); err == nil {
		return coin, nil
	}
	var list []coinQuote
	if err := sonic.Unmarshal(raw, &list); err != nil {
		return coinQuote{}, errors.Wrap(errStructural, err.Error())
	}
	if len(list) == 0 {
		return coinQuote{}, errors.Wrap(errStructural, "empty coin list")
	}
	return list[0], nil
}

func (c *Client) get(ctx context.Context, base, path string, q url.Values) ([]byte, error) {
	u := strings.TrimRight(base, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(apiKeyHeader, c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("http %d: %s", resp.StatusCode, body)
	}
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return body, nil
}

type mapResp struct {
	Data []struct {
		ID     int    `json:"id"`
		Symbol string `json:"symbol"`
		Rank   *int   `json:"rank"`
	} `json:"data"`
}

// lookupID: id монеты из каталога. Каталог грузится один раз,
// параллельные вызовы ждут одну загрузку. Неудачная загрузка не кэшируется.
func (c *Client) lookupID(ctx context.Context, symbol string) (int, bool) {
	c.mu.RLock()
	catalog := c.catalog
	c.mu.RUnlock()

	if catalog == nil {
		v, err, _ := c.group.Do("catalog", func() (interface{}, error) {
			return c.loadCatalog(ctx)
		})
		if err != nil {
			c.log.Warn("catalog unavailable, querying by symbol", zap.Error(err))
			return 0, false
		}
		catalog = v.(map[string]int)
	}

	id, ok := catalog[symbol]
	return id, ok
}

func (c *Client) loadCatalog(ctx context.Context) (map[string]int, error) {
	c.mu.RLock()
	if c.catalog != nil {
		defer c.mu.RUnlock()
		return c.catalog, nil
	}
	c.mu.RUnlock()

	body, err := c.get(ctx, c.cfg.CatalogURL, "/cryptocurrency/map", nil)
	if err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}
	var payload mapResp
	if err := sonic.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}

	// несколько монет с одним символом: берём лучшую по rank
	catalog := make(map[string]int, len(payload.Data))
	ranks := make(map[string]int, len(payload.Data))
	for _, coin := range payload.Data {
		sym, err := helper.NormSymbol(coin.Symbol)
		if err != nil {
			continue
		}
		rank := int(^uint(0) >> 1)
		if coin.Rank != nil && *coin.Rank > 0 {
			rank = *coin.Rank
		}
		if prev, ok := ranks[sym]; ok && prev <= rank {
			continue
		}
		catalog[sym] = coin.ID
		ranks[sym] = rank
	}

	c.mu.Lock()
	c.catalog = catalog
	c.mu.Unlock()

	c.log.Info("coin catalog loaded", zap.Int("coins", len(catalog)))
	return catalog, nil
}
