package feed

import (
	"context"
	"sync"
)

// MemoryFeed implementa Feed y Publisher en proceso. Sirve para despliegues
// de un solo proceso y para tests; la entrega es sincrona.
type MemoryFeed struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]Handler
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[string]map[int]Handler)}
}

func (f *MemoryFeed) Publish(_ context.Context, ev Event) error {
	f.mu.Lock()
	channel := channelName(ev.Table, ev.Type)
	handlers := make([]Handler, 0, len(f.subs[channel]))
	for _, h := range f.subs[channel] {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

func (f *MemoryFeed) Subscribe(table, eventType string, h Handler) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	channel := channelName(table, eventType)
	if f.subs[channel] == nil {
		f.subs[channel] = make(map[int]Handler)
	}
	f.nextID++
	id := f.nextID
	f.subs[channel][id] = h

	return &memorySubscription{feed: f, channel: channel, id: id}, nil
}

// SubscriberCount devuelve cuantos handlers hay activos para un canal.
func (f *MemoryFeed) SubscriberCount(table, eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[channelName(table, eventType)])
}

type memorySubscription struct {
	feed    *MemoryFeed
	channel string
	id      int
}

func (s *memorySubscription) Unsubscribe() {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	delete(s.feed.subs[s.channel], s.id)
}
