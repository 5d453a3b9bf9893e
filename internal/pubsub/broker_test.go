package pubsub

import "testing"

func TestBrokerDeliversToTopicSubscribers(t *testing.T) {
	b := NewBroker()

	got := 0
	cancel := b.Subscribe(TopicConversations, func(topic Topic) {
		if topic != TopicConversations {
			t.Fatalf("unexpected topic %q", topic)
		}
		got++
	})
	defer cancel()

	b.Publish(TopicConversations)
	b.Publish(TopicConversations)

	if got != 2 {
		t.Fatalf("expected 2 deliveries, got %d", got)
	}
}

func TestBrokerScopesTopics(t *testing.T) {
	b := NewBroker()

	c1, c2 := 0, 0
	defer b.Subscribe(ConversationTopic("c1"), func(Topic) { c1++ })()
	defer b.Subscribe(ConversationTopic("c2"), func(Topic) { c2++ })()

	b.Publish(ConversationTopic("c1"))

	if c1 != 1 || c2 != 0 {
		t.Fatalf("expected scoped delivery, got c1=%d c2=%d", c1, c2)
	}
}

func TestBrokerCancelStopsDelivery(t *testing.T) {
	b := NewBroker()

	got := 0
	cancel := b.Subscribe(TopicConversations, func(Topic) { got++ })

	b.Publish(TopicConversations)
	cancel()
	b.Publish(TopicConversations)

	if got != 1 {
		t.Fatalf("expected 1 delivery after cancel, got %d", got)
	}
}

func TestBrokerPublishWithoutSubscribers(t *testing.T) {
	b := NewBroker()
	// No debe entrar en panico ni bloquear.
	b.Publish(ConversationTopic("nadie"))
}
