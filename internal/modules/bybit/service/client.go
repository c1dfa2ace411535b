package service

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"signal_tracker/internal/helper"
	"signal_tracker/internal/models"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

const source = "bybit"

type Config struct {
	BaseURL  string
	Category string        // "linear" - USDT-перпетуалы
	Quote    string        // суффикс торговой пары
	Timeout  time.Duration // на весь запрос
}

// Client: источник текущей цены. Без ретраев и без кэша.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log.Named(source),
	}
}

type tickersResp struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  *struct {
		Category string `json:"category"`
		List     []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	} `json:"result"`
}

// GetPrice: последняя цена symbol+Quote на линейном рынке.
func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	sym, err := helper.NormSymbol(symbol)
	if err != nil {
		return 0, err
	}
	pair := sym + c.cfg.Quote

	q := url.Values{}
	q.Set("category", c.cfg.Category)
	q.Set("symbol", pair)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v5/market/tickers?"+q.Encode(), nil)
	if err != nil {
		return 0, &models.UpstreamError{Source: source, Reason: "build request", Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &models.UpstreamError{Source: source, Reason: "do request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return 0, &models.UpstreamError{Source: source, StatusCode: resp.StatusCode, Reason: string(body)}
	}
	if err != nil {
		return 0, &models.UpstreamError{Source: source, Reason: "read body", Err: err}
	}

	var payload tickersResp
	if err := sonic.Unmarshal(body, &payload); err != nil {
		return 0, &models.UpstreamError{Source: source, Reason: "decode", Err: err}
	}
	if payload.RetCode != 0 {
		return 0, &models.UpstreamError{Source: source, Reason: "retCode " + strconv.Itoa(payload.RetCode) + ": " + payload.RetMsg}
	}
	if payload.Result == nil || len(payload.Result.List) == 0 {
		return 0, &models.UpstreamError{Source: source, Reason: "empty result for " + pair}
	}

	raw := payload.Result.List[0].LastPrice
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &models.UpstreamError{Source: source, Reason: "lastPrice " + strconv.Quote(raw), Err: err}
	}
	if price <= 0 {
		return 0, &models.UpstreamError{Source: source, Reason: "lastPrice <= 0 for " + pair}
	}

	c.log.Debug("price fetched", zap.String("pair", pair), zap.Float64("price", price))
	return price, nil
}
