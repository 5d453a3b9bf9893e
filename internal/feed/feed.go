package feed

import "context"

// Tablas y clases de evento que emite el change feed del store. El nucleo
// solo consume inserts de mensajes y de conversaciones.
const (
	TableMessages      = "messages"
	TableConversations = "conversations"

	EventInsert = "insert"
)

// Event es un evento row-level del store. Payload es JSON del cambio.
type Event struct {
	Table   string `json:"table"`
	Type    string `json:"type"`
	Payload []byte `json:"payload"`
}

// MessageInserted es el payload de un insert en messages.
type MessageInserted struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
}

// ConversationInserted es el payload de un insert en conversations.
type ConversationInserted struct {
	ConversationID string   `json:"conversation_id"`
	Participants   []string `json:"participants"`
}

// Handler recibe eventos de forma asincrona. La entrega es best-effort y
// al menos una vez: los handlers deben ser idempotentes.
type Handler func(Event)

// Subscription representa una suscripcion activa a un canal del feed.
type Subscription interface {
	Unsubscribe()
}

// Feed expone el contrato subscribe(table, eventType, callback).
type Feed interface {
	Subscribe(table, eventType string, h Handler) (Subscription, error)
}

// Publisher inyecta eventos al feed. En esta implementacion lo llaman los
// servicios tras cada escritura exitosa; en el backend hosteado lo haria
// el propio store.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
