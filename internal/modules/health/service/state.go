package service

import (
	"sync/atomic"
	"time"
)

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	lastSignalUnix atomic.Int64 // unix seconds
	signals        atomic.Int64
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

// TouchSignal отмечает принятый вебхук.
func (s *State) TouchSignal(t time.Time) {
	s.lastSignalUnix.Store(t.Unix())
	s.signals.Add(1)
}

func (s *State) LastSignal() time.Time {
	u := s.lastSignalUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) Signals() int64 { return s.signals.Load() }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
