package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"atelier-dm/internal/domain"
	"atelier-dm/internal/repository"
)

var (
	ErrReadStateServiceNotConfigured = errors.New("read state service not configured")
	ErrReadStateInvalidInput         = errors.New("read state invalid input")
)

// ReadStateService marca como leidos los mensajes del otro participante y
// poda las notificaciones pendientes que quedaron sin sentido.
type ReadStateService struct {
	logger        *zap.Logger
	messages      repository.MessageRepository
	notifications repository.NotificationRepository
}

func NewReadStateService(
	logger *zap.Logger,
	messages repository.MessageRepository,
	notifications repository.NotificationRepository,
) *ReadStateService {
	return &ReadStateService{
		logger:        logger,
		messages:      messages,
		notifications: notifications,
	}
}

// MarkRead pone read_at a todos los mensajes no leidos que no son del
// lector. Sin mensajes pendientes es un no-op exitoso. El borrado de
// notificaciones es best-effort: si falla se loggea y la operacion sigue
// reportando exito.
func (s *ReadStateService) MarkRead(ctx context.Context, conversationID, readerID string) error {
	if s == nil || s.messages == nil {
		return ErrReadStateServiceNotConfigured
	}

	conversationID = strings.TrimSpace(conversationID)
	readerID = strings.TrimSpace(readerID)
	if conversationID == "" || readerID == "" {
		return ErrReadStateInvalidInput
	}

	unread, err := s.messages.ListUnread(ctx, conversationID, readerID)
	if err != nil {
		return domain.StorageError(err)
	}
	if len(unread) == 0 {
		return nil
	}

	ids := make([]string, 0, len(unread))
	for _, msg := range unread {
		ids = append(ids, msg.ID)
	}

	if err := s.messages.MarkRead(ctx, ids, time.Now().UTC()); err != nil {
		return domain.StorageError(err)
	}

	if s.notifications != nil {
		if err := s.notifications.DeleteUnsent(ctx, readerID, ids); err != nil {
			s.logger.Warn("stale notification prune failed",
				zap.Error(domain.NotificationError(err)),
				zap.String("conversation_id", conversationID),
				zap.String("reader_id", readerID),
			)
		}
	}
	return nil
}
