package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"atelier-dm/internal/domain"
	"atelier-dm/internal/feed"
	"atelier-dm/internal/repository"
)

var (
	ErrConversationServiceNotConfigured = errors.New("conversation service not configured")
	ErrConversationInvalidInput         = errors.New("conversation invalid input")
)

// ConversationService resuelve la conversacion canonica de un par de
// participantes y maneja su borrado autorizado.
type ConversationService struct {
	logger        *zap.Logger
	conversations repository.ConversationRepository
	publisher     feed.Publisher
}

func NewConversationService(
	logger *zap.Logger,
	conversations repository.ConversationRepository,
	publisher feed.Publisher,
) *ConversationService {
	return &ConversationService{
		logger:        logger,
		conversations: conversations,
		publisher:     publisher,
	}
}

// GetOrCreate devuelve la unica conversacion del par, creandola si es el
// primer contacto. El par se normaliza antes de buscar, asi (A,B) y (B,A)
// resuelven igual. El alta usa el upsert del repositorio, asi dos primeros
// contactos concurrentes no duplican la fila.
func (s *ConversationService) GetOrCreate(ctx context.Context, participantA, participantB string) (domain.Conversation, error) {
	if s == nil || s.conversations == nil {
		return domain.Conversation{}, ErrConversationServiceNotConfigured
	}

	participantA = strings.TrimSpace(participantA)
	participantB = strings.TrimSpace(participantB)
	if participantA == "" || participantB == "" || participantA == participantB {
		return domain.Conversation{}, ErrConversationInvalidInput
	}

	pair := domain.ParticipantPair(participantA, participantB)

	conv, err := s.conversations.GetByParticipants(ctx, pair)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, domain.StorageError(err)
	}

	now := time.Now().UTC()
	created, err := s.conversations.Create(ctx, domain.Conversation{
		ID:            uuid.NewString(),
		Participants:  pair,
		CreatedAt:     now,
		UpdatedAt:     now,
		LastMessageAt: now,
	})
	if err != nil {
		return domain.Conversation{}, domain.StorageError(err)
	}

	s.publishInsert(ctx, created)
	return created, nil
}

// Delete borra la conversacion y, en cascada, sus mensajes. Solo un
// participante puede borrarla.
func (s *ConversationService) Delete(ctx context.Context, conversationID, requesterID string) error {
	if s == nil || s.conversations == nil {
		return ErrConversationServiceNotConfigured
	}

	conversationID = strings.TrimSpace(conversationID)
	requesterID = strings.TrimSpace(requesterID)
	if conversationID == "" || requesterID == "" {
		return ErrConversationInvalidInput
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFoundError(fmt.Errorf("conversation %s not found", conversationID))
	}
	if err != nil {
		return domain.StorageError(err)
	}

	if !conv.HasParticipant(requesterID) {
		return domain.AuthorizationError(fmt.Errorf("user %s is not a participant of conversation %s", requesterID, conversationID))
	}

	if err := s.conversations.Delete(ctx, conversationID); err != nil {
		return domain.StorageError(err)
	}
	return nil
}

func (s *ConversationService) publishInsert(ctx context.Context, conv domain.Conversation) {
	if s.publisher == nil {
		return
	}
	payload := mustJSON(feed.ConversationInserted{
		ConversationID: conv.ID,
		Participants:   conv.Participants,
	})
	if err := s.publisher.Publish(ctx, feed.Event{
		Table:   feed.TableConversations,
		Type:    feed.EventInsert,
		Payload: payload,
	}); err != nil {
		s.logger.Warn("conversation feed publish failed", zap.Error(err), zap.String("conversation_id", conv.ID))
	}
}
