package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"atelier-dm/internal/domain"
)

// ConversationRepository define el contrato de persistencia para conversaciones.
type ConversationRepository interface {
	GetByID(ctx context.Context, id string) (domain.Conversation, error)
	GetByParticipants(ctx context.Context, pair []string) (domain.Conversation, error)
	Create(ctx context.Context, conv domain.Conversation) (domain.Conversation, error)
	ListByParticipant(ctx context.Context, userID string) ([]domain.Conversation, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// PgConversationRepository implementa ConversationRepository usando pgxpool.
type PgConversationRepository struct {
	pool *pgxpool.Pool
}

func NewPgConversationRepository(pool *pgxpool.Pool) *PgConversationRepository {
	return &PgConversationRepository{pool: pool}
}

const conversationColumns = `id, participants, created_at, updated_at, last_message_at`

func (r *PgConversationRepository) GetByID(ctx context.Context, id string) (domain.Conversation, error) {
	const query = `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE id = $1
	`
	return scanConversation(r.pool.QueryRow(ctx, query, id))
}

// GetByParticipants busca la conversacion del par canonico. El lookup
// primario usa contencion de arrays; solo si el backend no soporta el
// operador cae a escanear todas las conversaciones y filtrar del lado del
// cliente. Ese fallback solo es aceptable a escala chica. Cualquier otro
// error (conexion caida, timeout) se propaga tal cual.
func (r *PgConversationRepository) GetByParticipants(ctx context.Context, pair []string) (domain.Conversation, error) {
	const query = `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE participants @> $1 AND cardinality(participants) = 2
	`
	conv, err := scanConversation(r.pool.QueryRow(ctx, query, pair))
	if err == nil {
		return conv, nil
	}
	if operatorUnsupported(err) {
		return r.scanForPair(ctx, pair)
	}
	return domain.Conversation{}, err
}

// operatorUnsupported reconoce los codigos de Postgres para funcion u
// operador inexistente y feature no soportada.
func operatorUnsupported(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "42883" || pgErr.Code == "0A000"
}

func (r *PgConversationRepository) scanForPair(ctx context.Context, pair []string) (domain.Conversation, error) {
	const query = `SELECT ` + conversationColumns + ` FROM conversations`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return domain.Conversation{}, err
	}
	defer rows.Close()

	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return domain.Conversation{}, err
		}
		if len(pair) == 2 && conv.HasParticipant(pair[0]) && conv.HasParticipant(pair[1]) {
			return conv, nil
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Conversation{}, err
	}
	return domain.Conversation{}, pgx.ErrNoRows
}

// Create inserta el par canonico. Se apoya en el indice unico sobre
// participants: si dos resoluciones concurrentes del mismo par llegan a la
// vez, solo una inserta y ambas devuelven la misma fila.
func (r *PgConversationRepository) Create(ctx context.Context, conv domain.Conversation) (domain.Conversation, error) {
	const insert = `
		INSERT INTO conversations (id, participants, created_at, updated_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (participants) DO NOTHING
	`
	const reselect = `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE participants = $1
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Conversation{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insert,
		conv.ID,
		conv.Participants,
		conv.CreatedAt,
		conv.UpdatedAt,
		conv.LastMessageAt,
	); err != nil {
		return domain.Conversation{}, err
	}

	winner, err := scanConversation(tx.QueryRow(ctx, reselect, conv.Participants))
	if err != nil {
		return domain.Conversation{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Conversation{}, err
	}
	return winner, nil
}

func (r *PgConversationRepository) ListByParticipant(ctx context.Context, userID string) ([]domain.Conversation, error) {
	const query = `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE $1 = ANY(participants)
		ORDER BY last_message_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return convs, nil
}

// Touch avanza los metadatos de recencia tras un mensaje nuevo.
func (r *PgConversationRepository) Touch(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE conversations
		SET updated_at = $2, last_message_at = $2
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, at)
	return err
}

// Delete borra la conversacion; los mensajes caen en cascada por FK.
func (r *PgConversationRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM conversations WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func scanConversation(row pgx.Row) (domain.Conversation, error) {
	var c domain.Conversation
	err := row.Scan(
		&c.ID,
		&c.Participants,
		&c.CreatedAt,
		&c.UpdatedAt,
		&c.LastMessageAt,
	)
	return c, err
}
