package models

import "time"

type EventType string

const (
	EventSignal EventType = "signal"
	EventSample EventType = "sample"
	EventSkip   EventType = "skip"
	EventDone   EventType = "done"
	EventStatus EventType = "status"
)

// Event: то, что уходит подписчикам /ws.
type Event struct {
	Type      EventType `json:"type"`
	Row       int       `json:"row,omitempty"`
	Symbol    string    `json:"symbol,omitempty"`
	Action    Action    `json:"action,omitempty"`
	Interval  string    `json:"interval,omitempty"`
	Price     float64   `json:"price,omitempty"`
	ChangePct float64   `json:"change_pct,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	LiveTasks int       `json:"live_tasks,omitempty"`
	At        time.Time `json:"at"`
}
