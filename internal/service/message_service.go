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
	"atelier-dm/internal/notify"
	"atelier-dm/internal/repository"
)

var (
	ErrMessageServiceNotConfigured = errors.New("message service not configured")
	ErrMessageInvalidInput         = errors.New("message invalid input")
)

// MessageService es el pipeline de envio: persiste el mensaje junto con la
// recencia de la conversacion, adjunta el perfil del emisor y dispara la
// notificacion al otro participante como efecto aislado.
type MessageService struct {
	logger        *zap.Logger
	messages      repository.MessageRepository
	conversations repository.ConversationRepository
	notifications repository.NotificationRepository
	users         repository.UserRepository
	queue         notify.Queue
	publisher     feed.Publisher
}

func NewMessageService(
	logger *zap.Logger,
	messages repository.MessageRepository,
	conversations repository.ConversationRepository,
	notifications repository.NotificationRepository,
	users repository.UserRepository,
	queue notify.Queue,
	publisher feed.Publisher,
) *MessageService {
	return &MessageService{
		logger:        logger,
		messages:      messages,
		conversations: conversations,
		notifications: notifications,
		users:         users,
		queue:         queue,
		publisher:     publisher,
	}
}

// Send persiste el mensaje y devuelve la fila con el perfil del emisor ya
// adjunto. Cualquier fallo del lado de notificaciones se loggea y se traga:
// un mensaje guardado nunca se reporta como fallido por su alerta.
func (s *MessageService) Send(ctx context.Context, conversationID, senderID, content string, media *domain.Media) (domain.Message, error) {
	if s == nil || s.messages == nil || s.conversations == nil {
		return domain.Message{}, ErrMessageServiceNotConfigured
	}

	conversationID = strings.TrimSpace(conversationID)
	senderID = strings.TrimSpace(senderID)
	content = strings.TrimSpace(content)
	if conversationID == "" || senderID == "" {
		return domain.Message{}, ErrMessageInvalidInput
	}
	if content == "" && media == nil {
		return domain.Message{}, ErrMessageInvalidInput
	}

	conv, err := s.conversations.GetByID(ctx, conversationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Message{}, domain.NotFoundError(fmt.Errorf("conversation %s not found", conversationID))
	}
	if err != nil {
		return domain.Message{}, domain.StorageError(err)
	}
	if !conv.HasParticipant(senderID) {
		return domain.Message{}, domain.AuthorizationError(fmt.Errorf("user %s is not a participant of conversation %s", senderID, conversationID))
	}

	msg := domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Media:          media,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.messages.CreateWithTouch(ctx, msg); err != nil {
		return domain.Message{}, domain.StorageError(err)
	}

	// El perfil del emisor se adjunta para ahorrarle a la UI una segunda
	// vuelta. Si falla, el mensaje ya esta guardado: se degrada, no se
	// falla.
	if s.users != nil {
		sender, err := s.users.GetByID(ctx, senderID)
		if err != nil {
			s.logger.Warn("sender profile fetch failed", zap.Error(err), zap.String("sender_id", senderID))
		} else {
			msg.Sender = &sender
		}
	}

	s.notifyRecipient(ctx, conv, msg)
	s.publishInsert(ctx, msg)

	return msg, nil
}

// notifyRecipient crea la fila en la cola y encola la entrega. Todo fallo
// queda aislado aca: se loggea con kind notification y no se propaga.
func (s *MessageService) notifyRecipient(ctx context.Context, conv domain.Conversation, msg domain.Message) {
	recipientID := conv.OtherParticipant(msg.SenderID)
	if recipientID == "" {
		return
	}

	notification := domain.Notification{
		ID:            uuid.NewString(),
		Type:          domain.NotificationTypeDirectMessage,
		RecipientID:   recipientID,
		RelatedItemID: msg.ID,
		IsSent:        false,
	}

	if s.notifications != nil {
		if err := s.notifications.Create(ctx, notification); err != nil {
			s.logger.Warn("notification row create failed",
				zap.Error(domain.NotificationError(err)),
				zap.String("message_id", msg.ID),
			)
			return
		}
	}

	if s.queue == nil {
		return
	}
	err := s.queue.QueueNotification(ctx, notify.DirectMessagePayload{
		NotificationID: notification.ID,
		RecipientID:    recipientID,
		SenderID:       msg.SenderID,
		MessageID:      msg.ID,
		Content:        msg.Content,
	})
	if err != nil {
		s.logger.Warn("notification enqueue failed",
			zap.Error(domain.NotificationError(err)),
			zap.String("message_id", msg.ID),
			zap.String("recipient_id", recipientID),
		)
	}
}

func (s *MessageService) publishInsert(ctx context.Context, msg domain.Message) {
	if s.publisher == nil {
		return
	}
	payload := mustJSON(feed.MessageInserted{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
	})
	if err := s.publisher.Publish(ctx, feed.Event{
		Table:   feed.TableMessages,
		Type:    feed.EventInsert,
		Payload: payload,
	}); err != nil {
		s.logger.Warn("message feed publish failed", zap.Error(err), zap.String("message_id", msg.ID))
	}
}
