package pubsub

import "sync"

// Topic identifica un canal tipado de señales de refresco entre componentes.
type Topic string

// TopicConversations señala que la lista de conversaciones cacheada cambio.
const TopicConversations Topic = "conversations"

// ConversationTopic devuelve el topic acotado a una conversacion puntual.
func ConversationTopic(conversationID string) Topic {
	return Topic("conversation:" + conversationID)
}

// Broker es un publish/subscribe en proceso con topics tipados. Se inyecta
// en lugar de instanciarse como singleton global; las señales no llevan
// payload, solo avisan que hay que releer el estado.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[Topic]map[int]func(Topic)
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[Topic]map[int]func(Topic))}
}

// Subscribe registra un callback y devuelve la funcion para cancelarlo.
func (b *Broker) Subscribe(topic Topic, fn func(Topic)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]func(Topic))
	}
	b.nextID++
	id := b.nextID
	b.subs[topic][id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[topic], id)
	}
}

// Publish entrega la señal a todos los suscriptores del topic.
func (b *Broker) Publish(topic Topic) {
	b.mu.Lock()
	fns := make([]func(Topic), 0, len(b.subs[topic]))
	for _, fn := range b.subs[topic] {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(topic)
	}
}
