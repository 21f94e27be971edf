package manager

import (
	"sync"

	"github.com/dstq/kernelbus/message"
)

// busCapacity bounds each subscriber's buffered channel; a subscriber
// that falls behind by more than this many messages loses messages and
// is told so by a lagging marker, rather than being allowed to block the
// publisher (spec.md §4.I broadcast design note).
const busCapacity = 256

// broadcastBus fans out messages published on one runtime's iopub
// channel to every interested subscriber, dropping messages for (not
// blocking on) a subscriber that can't keep up.
type broadcastBus struct {
	mu   sync.Mutex
	subs map[int]chan *published
	next int
}

type published struct {
	msg     *message.Message
	dropped bool
}

func newBroadcastBus() *broadcastBus {
	return &broadcastBus{subs: make(map[int]chan *published)}
}

// subscribe registers a new subscriber and returns its channel and an
// unsubscribe function.
func (b *broadcastBus) subscribe() (<-chan *published, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan *published, busCapacity)
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if ch, ok := b.subs[id]; ok {
			close(ch)
			delete(b.subs, id)
		}
		b.mu.Unlock()
	}
}

// publish delivers msg to every current subscriber, non-blocking: a full
// subscriber channel has its oldest buffered entry evicted and gets a
// lagging marker instead of the message, and is otherwise left connected
// (spec.md §9 design note on bounded fan-out).
func (b *broadcastBus) publish(msg *message.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- &published{msg: msg}:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- &published{dropped: true}:
			default:
			}
		}
	}
}

// closeAll shuts down every subscriber channel, used when the owning
// runtime is torn down.
func (b *broadcastBus) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
