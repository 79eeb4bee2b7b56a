// Package journal records what happened during backtests, keyed by market date.
package journal

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Event types written by the backtest runner.
const (
	TypeRun    = "run"
	TypeSignal = "signal"
	TypeTrade  = "trade"
)

// Event represents a journaled event. Time is the market day the event refers
// to, not the wall clock.
type Event struct {
	Time        time.Time      `json:"time"`
	Type        string         `json:"type"`
	Symbol      string         `json:"symbol"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// Journaler interface for journaling events.
type Journaler interface {
	LogEvent(event Event) error
	// GetEvents returns events of eventType in [start, end]. An empty type
	// matches every type and zero bounds are open.
	GetEvents(eventType string, start, end time.Time) ([]Event, error)
}

// Memory keeps events in process memory, bounded to the newest Limit events.
type Memory struct {
	mu     sync.RWMutex
	events []Event
	Limit  int
}

func NewMemory(limit int) *Memory {
	return &Memory{Limit: limit}
}

func (m *Memory) LogEvent(event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Symbol = strings.ToUpper(event.Symbol)
	m.events = append(m.events, event)
	if m.Limit > 0 && len(m.events) > m.Limit {
		m.events = append(m.events[:0:0], m.events[len(m.events)-m.Limit:]...)
	}
	return nil
}

func (m *Memory) GetEvents(eventType string, start, end time.Time) ([]Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for _, e := range m.events {
		if eventType != "" && e.Type != eventType {
			continue
		}
		if !start.IsZero() && e.Time.Before(start) {
			continue
		}
		if !end.IsZero() && e.Time.After(end) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
