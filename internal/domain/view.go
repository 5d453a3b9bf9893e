package domain

// ConversationView es la proyeccion de cache que consume la UI: la
// conversacion mas el perfil del otro participante, el ultimo mensaje y el
// conteo de no leidos derivado. No se persiste.
type ConversationView struct {
	Conversation
	Partner     User     `json:"partner"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}
