package publishers

import (
	"context"
	"errors"
	"fmt"
)

// Fanout dispatches harvest events to every configured sink. One slow or
// failing sink never blocks the others; the pipeline treats delivery as
// best-effort.
type Fanout struct {
	publishers []Publisher
}

// NewFanout builds a dispatcher over the given sinks, dropping nil entries.
func NewFanout(pubs []Publisher) *Fanout {
	cp := make([]Publisher, 0, len(pubs))
	for _, p := range pubs {
		if p == nil {
			continue
		}
		cp = append(cp, p)
	}
	return &Fanout{publishers: cp}
}

// Publish forwards the event to every registered sink and returns how many
// accepted it, joined with the per-sink failures.
func (f *Fanout) Publish(ctx context.Context, evt Event) (int, error) {
	if f == nil || len(f.publishers) == 0 {
		return 0, nil
	}

	var errs []error
	successful := 0
	for _, p := range f.publishers {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("%s publisher[%s]: %w", p.Type(), p.ID(), err))
		} else {
			successful++
		}
	}
	return successful, errors.Join(errs...)
}

// Size returns the number of active sinks. The pipeline skips event building
// entirely when this is zero.
func (f *Fanout) Size() int {
	if f == nil {
		return 0
	}
	return len(f.publishers)
}
