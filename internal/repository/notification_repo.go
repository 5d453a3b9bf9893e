package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"atelier-dm/internal/domain"
)

// NotificationRepository define el contrato sobre la cola de notificaciones.
type NotificationRepository interface {
	Create(ctx context.Context, n domain.Notification) error
	GetByID(ctx context.Context, id string) (domain.Notification, error)
	// DeleteUnsent borra las notificaciones pendientes del lector que
	// referencian los mensajes recien leidos. Las ya enviadas quedan.
	DeleteUnsent(ctx context.Context, recipientID string, relatedItemIDs []string) error
	MarkSent(ctx context.Context, id string) error
}

// PgNotificationRepository implementa NotificationRepository usando pgxpool.
type PgNotificationRepository struct {
	pool *pgxpool.Pool
}

func NewPgNotificationRepository(pool *pgxpool.Pool) *PgNotificationRepository {
	return &PgNotificationRepository{pool: pool}
}

func (r *PgNotificationRepository) Create(ctx context.Context, n domain.Notification) error {
	const query = `
		INSERT INTO notification_queue (id, notification_type, recipient_id, related_item_id, is_sent)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		n.ID,
		n.Type,
		n.RecipientID,
		n.RelatedItemID,
		n.IsSent,
	)
	return err
}

func (r *PgNotificationRepository) GetByID(ctx context.Context, id string) (domain.Notification, error) {
	const query = `
		SELECT id, notification_type, recipient_id, related_item_id, is_sent
		FROM notification_queue
		WHERE id = $1
	`
	var n domain.Notification
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&n.ID,
		&n.Type,
		&n.RecipientID,
		&n.RelatedItemID,
		&n.IsSent,
	)
	return n, err
}

func (r *PgNotificationRepository) DeleteUnsent(ctx context.Context, recipientID string, relatedItemIDs []string) error {
	if len(relatedItemIDs) == 0 {
		return nil
	}
	const query = `
		DELETE FROM notification_queue
		WHERE recipient_id = $1 AND related_item_id = ANY($2) AND is_sent = false
	`
	_, err := r.pool.Exec(ctx, query, recipientID, relatedItemIDs)
	return err
}

func (r *PgNotificationRepository) MarkSent(ctx context.Context, id string) error {
	const query = `
		UPDATE notification_queue
		SET is_sent = true
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}
