package store

import "sync"

// Bus is a per-track single-producer/multi-consumer "latest value"
// broadcast of TrackSequence. Publish never blocks: a slow or absent
// consumer simply misses intermediate values, which is fine because the
// value is monotone and consumers only care about reaching-or-passing the
// one they await (§4.3).
type Bus struct {
	mu      sync.Mutex
	current TrackSequence
	subs    map[chan TrackSequence]struct{}
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan TrackSequence]struct{})}
}

// Publish records v as the latest value and wakes every subscriber,
// overwriting any value it had not yet consumed.
func (b *Bus) Publish(v TrackSequence) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = v
	for ch := range b.subs {
		select {
		case ch <- v:
		default:
			// drain the stale value, then deliver the new one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// Current returns the most recently published value.
func (b *Bus) Current() TrackSequence {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Subscribe returns a channel delivering the latest value on every change,
// and a cancel function that must be called to stop the subscription.
// Dropping the last subscriber never stalls Publish.
func (b *Bus) Subscribe() (<-chan TrackSequence, func()) {
	ch := make(chan TrackSequence, 1)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
	}
	return ch, cancel
}
