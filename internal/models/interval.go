package models

import "time"

// Interval: смещение от времени сигнала, на котором снимаем цену.
type Interval struct {
	Name  string
	Delay time.Duration
}

// Intervals в порядке возрастания задержки. Индекс определяет колонки.
var Intervals = []Interval{
	{Name: "15m", Delay: 15 * time.Minute},
	{Name: "1h", Delay: time.Hour},
	{Name: "2h", Delay: 2 * time.Hour},
	{Name: "4h", Delay: 4 * time.Hour},
	{Name: "1d", Delay: 24 * time.Hour},
	{Name: "3d", Delay: 3 * 24 * time.Hour},
}

// Target: абсолютное время снятия цены.
func (i Interval) Target(entry time.Time) time.Time {
	return entry.Add(i.Delay)
}
