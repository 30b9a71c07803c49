package monitor

import (
	"context"
	"fmt"

	"github.com/sweeney/power-sensor/internal/logic"
)

// QueryResult is one day's filtered view of the log.
type QueryResult struct {
	Date   string        `json:"date"`
	Kind   logic.Kind    `json:"kind,omitempty"`
	Events []logic.Event `json:"events"`
	Lost   int           `json:"lost"`
}

// Query returns the events of date (YYYY-MM-DD), newest first, optionally
// restricted to kind, and how many of them are power losses.
func (m *Monitor) Query(ctx context.Context, date string, kind logic.Kind) (QueryResult, error) {
	if _, err := logic.ParseDay(date); err != nil {
		return QueryResult{}, fmt.Errorf("monitor: bad date %q: %w", date, err)
	}
	if kind != "" && !kind.Valid() {
		return QueryResult{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	l, err := m.ReadLog(ctx)
	if err != nil {
		return QueryResult{}, err
	}
	events := logic.Filter(l, date, kind)
	return QueryResult{
		Date:   date,
		Kind:   kind,
		Events: events,
		Lost:   logic.CountKind(events, logic.KindLost),
	}, nil
}
