package engine

import (
	"context"
	"sync"

	"github.com/mayara-project/mayara/internal/netmon"
)

// fanout turns one netmon.Monitor's single Events() channel into several
// independent subscriptions. Interface up/down transitions are not a
// broadcast by nature in Go: a channel delivers each value to exactly one
// receiver, but every vendor locator and the interface-status tracker all
// need to see every transition, so the engine fans the monitor's one
// channel out into one buffered channel per subscriber.
type fanout struct {
	source <-chan netmon.Event

	mu   sync.Mutex
	subs []chan netmon.Event
}

func newFanout(source <-chan netmon.Event) *fanout {
	return &fanout{source: source}
}

// subscribe returns a new channel that receives every event published on
// the underlying monitor from this point on. Must be called before run
// observes the corresponding events; subscribing after run has started
// still works; it only misses events already delivered.
func (f *fanout) subscribe(buffer int) <-chan netmon.Event {
	ch := make(chan netmon.Event, buffer)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch
}

// run drains the source channel and copies every event to each
// subscriber, dropping on a full subscriber buffer rather than blocking
// the others (same non-blocking-publish discipline as internal/bus).
func (f *fanout) run(ctx context.Context) {
	defer f.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-f.source:
			if !ok {
				return
			}
			f.mu.Lock()
			subs := make([]chan netmon.Event, len(f.subs))
			copy(subs, f.subs)
			f.mu.Unlock()

			for _, ch := range subs {
				select {
				case ch <- ev:
				default:
					logf("interface event fan-out channel full, dropping %+v", ev)
				}
			}
		}
	}
}

func (f *fanout) closeAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}
