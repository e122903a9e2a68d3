package store

import "sync"

// Feed delivers change signals for the issues collection. A signal carries
// no payload; subscribers re-read the collection.
type Feed interface {
	// Subscribe returns a channel that receives a value after every change
	// and a cancel func that detaches it. Bursts of changes may coalesce
	// into one signal. Cancel is safe to call more than once.
	Subscribe() (<-chan struct{}, func())
}

// Broadcaster is an in-process Feed.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan struct{}]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan struct{}]struct{})}
}

func (b *Broadcaster) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish signals every subscriber without blocking. A subscriber that has
// not drained its previous signal keeps just that one.
func (b *Broadcaster) Publish() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of attached subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
