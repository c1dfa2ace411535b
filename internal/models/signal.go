package models

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TimeLayout: формат времени сигнала в таблице.
const TimeLayout = "2006-01-02 15:04:05"

// Action как приходит из TradingView: "buy"/"sell".
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// ParseAction приводит action к нижнему регистру и проверяет значение.
func ParseAction(raw string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionBuy, ActionSell:
		return a, nil
	default:
		return "", errors.Wrapf(ErrInvalidAction, "%q", raw)
	}
}

// Signal: один вебхук, записанный в таблицу.
type Signal struct {
	Row        int // 1-based строка в таблице, ключ задачи пересэмплирования
	Symbol     string
	Action     Action
	EntryPrice float64
	EntryTime  time.Time
}

// Fields: строка для добавления в таблицу, колонки интервалов пустые.
func (s Signal) Fields(loc *time.Location) []string {
	fields := make([]string, ColumnCount)
	fields[ColTicker-1] = s.Symbol
	fields[ColAction-1] = string(s.Action)
	fields[ColSignalPrice-1] = FormatPrice(s.EntryPrice)
	fields[ColSignalTime-1] = s.EntryTime.In(loc).Format(TimeLayout)
	return fields
}
