package domain

import (
	"sort"
	"time"
)

// Conversation es el hilo directo entre exactamente dos usuarios. El par de
// participantes se guarda siempre ordenado, asi (a,b) y (b,a) apuntan a la
// misma fila.
type Conversation struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// ParticipantPair devuelve el par canonico ordenado para dos identidades.
func ParticipantPair(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}

// HasParticipant indica si la identidad pertenece al hilo.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant devuelve al otro integrante del par, o vacio si la
// identidad no participa.
func (c Conversation) OtherParticipant(userID string) string {
	if !c.HasParticipant(userID) {
		return ""
	}
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	// Hilo consigo mismo: el partner es la propia identidad.
	return userID
}
