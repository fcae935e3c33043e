package events

import "sync"

// Bus is an in-process Channel. It backs tests and local signal emission;
// the production transport is the websocket Socket.
type Bus struct {
	mu       sync.Mutex
	handlers map[Signal]map[int]Handler
	nextID   int
}

var _ Channel = (*Bus)(nil)

func NewBus() *Bus {
	return &Bus{handlers: make(map[Signal]map[int]Handler)}
}

func (b *Bus) Subscribe(sig Signal, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[sig] == nil {
		b.handlers[sig] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.handlers[sig][id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[sig], id)
	}
}

// Emit delivers the signal to current subscribers, synchronously.
func (b *Bus) Emit(sig Signal) {
	b.mu.Lock()
	hs := make([]Handler, 0, len(b.handlers[sig]))
	for _, h := range b.handlers[sig] {
		hs = append(hs, h)
	}
	b.mu.Unlock()

	for _, h := range hs {
		h(sig)
	}
}

func (b *Bus) Open() error  { return nil }
func (b *Bus) Close() error { return nil }
