package feed

import (
	"context"
	"testing"
)

func TestMemoryFeedFanOut(t *testing.T) {
	f := NewMemoryFeed()

	a, b := 0, 0
	subA, err := f.Subscribe(TableMessages, EventInsert, func(Event) { a++ })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer subA.Unsubscribe()
	subB, err := f.Subscribe(TableMessages, EventInsert, func(Event) { b++ })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer subB.Unsubscribe()

	if err := f.Publish(context.Background(), Event{Table: TableMessages, Type: EventInsert}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if a != 1 || b != 1 {
		t.Fatalf("expected both handlers invoked, got a=%d b=%d", a, b)
	}
}

func TestMemoryFeedChannelIsolation(t *testing.T) {
	f := NewMemoryFeed()

	msgs, convs := 0, 0
	sub1, _ := f.Subscribe(TableMessages, EventInsert, func(Event) { msgs++ })
	defer sub1.Unsubscribe()
	sub2, _ := f.Subscribe(TableConversations, EventInsert, func(Event) { convs++ })
	defer sub2.Unsubscribe()

	_ = f.Publish(context.Background(), Event{Table: TableConversations, Type: EventInsert})

	if msgs != 0 || convs != 1 {
		t.Fatalf("expected only conversation handler, got msgs=%d convs=%d", msgs, convs)
	}
}

func TestMemoryFeedUnsubscribe(t *testing.T) {
	f := NewMemoryFeed()

	got := 0
	sub, _ := f.Subscribe(TableMessages, EventInsert, func(Event) { got++ })

	_ = f.Publish(context.Background(), Event{Table: TableMessages, Type: EventInsert})
	sub.Unsubscribe()
	_ = f.Publish(context.Background(), Event{Table: TableMessages, Type: EventInsert})

	if got != 1 {
		t.Fatalf("expected 1 delivery after unsubscribe, got %d", got)
	}
	if f.SubscriberCount(TableMessages, EventInsert) != 0 {
		t.Fatalf("expected no subscribers left")
	}
}
