package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"atelier-dm/internal/email"
	"atelier-dm/internal/repository"
)

// Worker consume la cola de notificaciones, entrega la alerta por correo y
// marca la fila como enviada. Si el Read-State Tracker ya borro la
// notificacion (mensaje leido antes de entregar), la tarea se descarta.
type Worker struct {
	logger        *zap.Logger
	server        *asynq.Server
	mux           *asynq.ServeMux
	notifications repository.NotificationRepository
	users         repository.UserRepository
	sender        email.Sender
}

func NewWorker(
	logger *zap.Logger,
	opt asynq.RedisClientOpt,
	notifications repository.NotificationRepository,
	users repository.UserRepository,
	sender email.Sender,
) *Worker {
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 5,
		Queues:      map[string]int{QueueName: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Warn("notification task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
	})

	w := &Worker{
		logger:        logger,
		server:        server,
		mux:           asynq.NewServeMux(),
		notifications: notifications,
		users:         users,
		sender:        sender,
	}
	w.mux.HandleFunc(TaskTypeDirectMessage, w.handleDirectMessage)
	return w
}

// Run bloquea hasta que el contexto se cancele y luego apaga el server.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}

func (w *Worker) handleDirectMessage(ctx context.Context, task *asynq.Task) error {
	var p DirectMessagePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	// El tracker de lectura puede podar la fila entre el encolado y la
	// entrega. La alerta de un mensaje ya leido se descarta, no se envia.
	notification, err := w.notifications.GetByID(ctx, p.NotificationID)
	if errors.Is(err, pgx.ErrNoRows) {
		w.logger.Info("notification pruned before delivery", zap.String("notification_id", p.NotificationID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load notification %s: %w", p.NotificationID, err)
	}
	if notification.IsSent {
		return nil
	}

	recipient, err := w.users.GetByID(ctx, p.RecipientID)
	if err != nil {
		return fmt.Errorf("load recipient %s: %w", p.RecipientID, err)
	}

	if err := w.sender.SendMessageAlert(ctx, recipient.Email, p.SenderID, p.Content); err != nil {
		return fmt.Errorf("deliver alert: %w", err)
	}

	// MarkSent sobre una fila ya borrada es un no-op: significa que el
	// mensaje se leyo antes de la entrega.
	if err := w.notifications.MarkSent(ctx, p.NotificationID); err != nil {
		w.logger.Warn("mark notification sent failed", zap.Error(err), zap.String("notification_id", p.NotificationID))
	}
	return nil
}
