package helper

import (
	"math"
	"strings"

	"signal_tracker/internal/models"

	"github.com/pkg/errors"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// суффиксы тикеров TradingView, длинные раньше коротких
var tickerSuffixes = []string{"USDT.P", "USD.P", "USDT", "PERP"}

// ExtractSymbol: "btcusdt" -> "BTC", "ETHUSDT.P" -> "ETH", "SOLPERP" -> "SOL".
func ExtractSymbol(ticker string) string {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	for _, suffix := range tickerSuffixes {
		if strings.HasSuffix(t, suffix) {
			return t[:len(t)-len(suffix)]
		}
	}
	return t
}

// NormSymbol: верхний регистр без пробелов, пустой символ - ошибка.
func NormSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", errors.Wrap(models.ErrInvalidSymbol, "empty symbol")
	}
	return s, nil
}

// ChangePct: изменение в процентах в сторону сделки: buy растёт с ценой, sell - наоборот.
func ChangePct(entry, current float64, action models.Action) (float64, error) {
	if entry <= 0 || math.IsNaN(entry) || math.IsInf(entry, 0) {
		return 0, errors.Wrapf(models.ErrInvalidEntryPrice, "entry=%v", entry)
	}
	switch action {
	case models.ActionBuy:
		return (current - entry) / entry * 100, nil
	case models.ActionSell:
		return (entry - current) / entry * 100, nil
	default:
		return 0, errors.Wrapf(models.ErrInvalidAction, "%q", action)
	}
}

// IntervalColumns: пара колонок (цена, %) для интервала с индексом i.
func IntervalColumns(i int) (priceCol, pctCol int) {
	priceCol = models.ColFirstInterval + 2*i
	return priceCol, priceCol + 1
}

// FormatNumber: nil -> "N/A", иначе целая часть с разделителем тысяч ("1,234,567").
func FormatNumber(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return message.NewPrinter(language.English).Sprintf("%d", int64(*v))
}
