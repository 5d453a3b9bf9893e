package domain

import "time"

// Media referencia un adjunto opcional del mensaje.
type Media struct {
	URL      string            `json:"url"`
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Message es inmutable despues de creado, salvo la transicion unica de
// ReadAt de nil a un timestamp.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content,omitempty"`
	Media          *Media     `json:"media,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`

	// Sender se denormaliza al enviar para que la UI pueda pintar el
	// mensaje sin otra vuelta al servidor. No se persiste.
	Sender *User `json:"sender,omitempty"`
}

// Unread indica si el mensaje sigue sin leer para una identidad dada.
func (m Message) Unread(self string) bool {
	return m.SenderID != self && m.ReadAt == nil
}
