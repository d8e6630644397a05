package progress

import (
	"sync"

	"github.com/pot-code/progress-sync/internal/domain"
)

// Feed fan-out of local-truth changes to interested consumers (the websocket
// endpoint). Slow consumers are skipped rather than blocking a sync.
type Feed struct {
	mu   sync.Mutex
	subs map[chan *domain.ProgressRecord]struct{}
}

// NewFeed create an empty feed
func NewFeed() *Feed {
	return &Feed{subs: make(map[chan *domain.ProgressRecord]struct{})}
}

// Subscribe register a consumer. The returned cancel function must be called
// when the consumer goes away.
func (f *Feed) Subscribe() (<-chan *domain.ProgressRecord, func()) {
	ch := make(chan *domain.ProgressRecord, 16)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[ch]; ok {
			delete(f.subs, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Publish push a snapshot of the record to every subscriber
func (f *Feed) Publish(record *domain.ProgressRecord) {
	clone := record.Clone()
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- clone:
		default:
		}
	}
}
