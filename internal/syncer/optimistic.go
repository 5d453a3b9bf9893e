package syncer

import (
	"atelier-dm/internal/domain"
	"atelier-dm/internal/pubsub"
)

// Snapshot es la foto inmutable que consume la capa de presentacion.
type Snapshot struct {
	Conversations        []domain.ConversationView `json:"conversations"`
	UnreadTotal          int                       `json:"unread_total"`
	ActiveConversationID string                    `json:"active_conversation_id,omitempty"`
	Loading              bool                      `json:"loading"`
	Error                string                    `json:"error,omitempty"`
}

// Snapshot devuelve una copia del estado cacheado.
func (s *Syncer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]domain.ConversationView, len(s.views))
	copy(views, s.views)

	snap := Snapshot{
		Conversations:        views,
		UnreadTotal:          s.unreadTotal,
		ActiveConversationID: s.activeID,
		Loading:              s.loading,
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	return snap
}

// SetActiveConversation mueve el puntero de conversacion activa.
func (s *Syncer) SetActiveConversation(conversationID string) {
	s.mu.Lock()
	s.activeID = conversationID
	s.mu.Unlock()
}

// AddConversation inserta una vista de forma optimista antes de que el
// fetch o la suscripcion la confirmen. Es idempotente por id: un duplicado
// es un no-op.
func (s *Syncer) AddConversation(view domain.ConversationView) {
	s.mu.Lock()
	if s.hasViewLocked(view.ID) {
		s.mu.Unlock()
		return
	}
	s.views = append(s.views, view)
	sortViews(s.views)
	s.recomputeUnreadLocked()
	s.mu.Unlock()

	s.broker.Publish(pubsub.TopicConversations)
}

// UpdateConversationWithMessage aplica un mensaje recien enviado o recibido
// sobre la vista: reemplaza el ultimo mensaje, sube la recencia y suma al
// conteo de no leidos solo si el emisor no es la identidad activa.
func (s *Syncer) UpdateConversationWithMessage(conversationID string, msg domain.Message) {
	s.mu.Lock()
	updated := false
	for i := range s.views {
		if s.views[i].ID != conversationID {
			continue
		}
		m := msg
		s.views[i].LastMessage = &m
		s.views[i].LastMessageAt = msg.CreatedAt
		s.views[i].UpdatedAt = msg.CreatedAt
		if msg.SenderID != s.identity {
			s.views[i].UnreadCount++
		}
		updated = true
		break
	}
	if !updated {
		s.mu.Unlock()
		return
	}
	sortViews(s.views)
	s.recomputeUnreadLocked()
	s.mu.Unlock()

	s.broker.Publish(pubsub.ConversationTopic(conversationID))
	s.broker.Publish(pubsub.TopicConversations)
}

// MarkConversationAsRead pone en cero el conteo de la conversacion.
func (s *Syncer) MarkConversationAsRead(conversationID string) {
	s.mu.Lock()
	found := false
	for i := range s.views {
		if s.views[i].ID == conversationID {
			s.views[i].UnreadCount = 0
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return
	}
	s.recomputeUnreadLocked()
	s.mu.Unlock()

	s.broker.Publish(pubsub.ConversationTopic(conversationID))
	s.broker.Publish(pubsub.TopicConversations)
}

// RemoveConversation descarta la vista tras un borrado explicito.
func (s *Syncer) RemoveConversation(conversationID string) {
	s.mu.Lock()
	idx := -1
	for i := range s.views {
		if s.views[i].ID == conversationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	s.views = append(s.views[:idx], s.views[idx+1:]...)
	if s.activeID == conversationID {
		s.activeID = ""
	}
	s.recomputeUnreadLocked()
	s.mu.Unlock()

	s.broker.Publish(pubsub.TopicConversations)
}
