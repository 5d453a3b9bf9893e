package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"atelier-dm/internal/domain"
)

// MessageRepository define el contrato de persistencia para mensajes.
type MessageRepository interface {
	// CreateWithTouch inserta el mensaje y avanza updated_at/last_message_at
	// de la conversacion padre en una sola transaccion.
	CreateWithTouch(ctx context.Context, msg domain.Message) error
	ListByConversationIDs(ctx context.Context, conversationIDs []string) ([]domain.Message, error)
	ListUnread(ctx context.Context, conversationID, readerID string) ([]domain.Message, error)
	MarkRead(ctx context.Context, ids []string, at time.Time) error
}

// PgMessageRepository implementa MessageRepository usando pgxpool.
type PgMessageRepository struct {
	pool *pgxpool.Pool
}

func NewPgMessageRepository(pool *pgxpool.Pool) *PgMessageRepository {
	return &PgMessageRepository{pool: pool}
}

const messageColumns = `id, conversation_id, sender_id, content, media_url, media_type, media_metadata, created_at, read_at`

func (r *PgMessageRepository) CreateWithTouch(ctx context.Context, msg domain.Message) error {
	const insert = `
		INSERT INTO messages (id, conversation_id, sender_id, content, media_url, media_type, media_metadata, created_at, read_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL)
	`
	const touch = `
		UPDATE conversations
		SET updated_at = $2, last_message_at = $2
		WHERE id = $1
	`

	var mediaURL, mediaType interface{}
	var mediaMeta interface{}
	if msg.Media != nil {
		mediaURL = msg.Media.URL
		mediaType = msg.Media.Type
		if len(msg.Media.Metadata) > 0 {
			raw, err := json.Marshal(msg.Media.Metadata)
			if err != nil {
				return err
			}
			mediaMeta = raw
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insert,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Content,
		mediaURL,
		mediaType,
		mediaMeta,
		msg.CreatedAt,
	); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, touch, msg.ConversationID, msg.CreatedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListByConversationIDs trae en un solo query los mensajes de todas las
// conversaciones pedidas, del mas reciente al mas viejo. El agrupado por
// conversacion se hace del lado del cliente.
func (r *PgMessageRepository) ListByConversationIDs(ctx context.Context, conversationIDs []string) ([]domain.Message, error) {
	if len(conversationIDs) == 0 {
		return []domain.Message{}, nil
	}
	const query = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = ANY($1)
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, conversationIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *PgMessageRepository) ListUnread(ctx context.Context, conversationID, readerID string) ([]domain.Message, error) {
	const query = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1 AND sender_id <> $2 AND read_at IS NULL
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query, conversationID, readerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *PgMessageRepository) MarkRead(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `
		UPDATE messages
		SET read_at = $2
		WHERE id = ANY($1) AND read_at IS NULL
	`
	_, err := r.pool.Exec(ctx, query, ids, at)
	return err
}

func scanMessages(rows pgxRows) ([]domain.Message, error) {
	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		var mediaURL, mediaType sql.NullString
		var mediaMeta []byte
		var readAt sql.NullTime

		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.SenderID,
			&m.Content,
			&mediaURL,
			&mediaType,
			&mediaMeta,
			&m.CreatedAt,
			&readAt,
		); err != nil {
			return nil, err
		}
		if mediaURL.Valid && mediaURL.String != "" {
			media := &domain.Media{URL: mediaURL.String, Type: mediaType.String}
			if len(mediaMeta) > 0 {
				if err := json.Unmarshal(mediaMeta, &media.Metadata); err != nil {
					return nil, fmt.Errorf("decode media metadata for message %s: %w", m.ID, err)
				}
			}
			m.Media = media
		}
		if readAt.Valid {
			t := readAt.Time
			m.ReadAt = &t
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// pgxRows is a minimal interface to allow scanning from pgx rows and simplify testing.
type pgxRows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
	Close()
}
