package notify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

// TaskTypeDirectMessage es el tipo de tarea que consume el worker de entrega.
const TaskTypeDirectMessage = "notification:direct_message"

// QueueName agrupa las tareas de alertas de mensajes.
const QueueName = "notifications"

// DirectMessagePayload viaja dentro de la tarea encolada.
type DirectMessagePayload struct {
	NotificationID string `json:"notification_id"`
	RecipientID    string `json:"recipient_id"`
	SenderID       string `json:"sender_id"`
	MessageID      string `json:"message_id"`
	Content        string `json:"content"`
}

// Queue encola alertas de mensaje directo para entrega downstream. Los
// llamadores aislan cualquier fallo: un error aca nunca debe tumbar el envio.
type Queue interface {
	QueueNotification(ctx context.Context, p DirectMessagePayload) error
}

// AsynqQueue implementa Queue sobre asynq con Redis como backend.
type AsynqQueue struct {
	client *asynq.Client
}

func NewAsynqQueue(opt asynq.RedisClientOpt) *AsynqQueue {
	return &AsynqQueue{client: asynq.NewClient(opt)}
}

func (q *AsynqQueue) QueueNotification(ctx context.Context, p DirectMessagePayload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	task := asynq.NewTask(TaskTypeDirectMessage, raw)
	_, err = q.client.EnqueueContext(ctx, task, asynq.Queue(QueueName), asynq.MaxRetry(3))
	return err
}

func (q *AsynqQueue) Close() error {
	return q.client.Close()
}

type disabledQueue struct {
	reason string
}

// NewDisabledQueue devuelve una cola que siempre falla con la razon dada.
// Como los llamadores aislan fallos de notificacion, desplegar sin Redis
// solo degrada las alertas, nunca el envio de mensajes.
func NewDisabledQueue(reason string) Queue {
	return &disabledQueue{reason: reason}
}

func (q *disabledQueue) QueueNotification(_ context.Context, _ DirectMessagePayload) error {
	if q.reason == "" {
		return errors.New("notification queue disabled")
	}
	return errors.New(q.reason)
}
