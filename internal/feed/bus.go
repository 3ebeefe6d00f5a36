package feed

import (
	"sync"
)

type Update struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Bus fans ledger updates out to connected dashboard clients. Slow
// subscribers drop messages rather than block the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Update]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Update]struct{})}
}

func (b *Bus) Subscribe() chan Update {
	ch := make(chan Update, 100)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Update) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(u Update) {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- u:
		default:
		}
	}
	b.mu.RUnlock()
}
