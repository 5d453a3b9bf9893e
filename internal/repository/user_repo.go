package repository

import (
	"context"
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"

	"atelier-dm/internal/domain"
)

// UserRepository define el contrato de lectura de perfiles. Las altas y el
// login viven en el servicio de cuentas, fuera de este nucleo.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
	ListByIDs(ctx context.Context, ids []string) ([]domain.User, error)
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `id, email, display_name, avatar_url, created_at`

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`
	var u domain.User
	var avatar sql.NullString
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&avatar,
		&u.CreatedAt,
	)
	if avatar.Valid {
		u.AvatarURL = avatar.String
	}
	return u, err
}

// ListByIDs trae todos los perfiles pedidos en un solo query.
func (r *PgUserRepository) ListByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return []domain.User{}, nil
	}
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = ANY($1)
	`
	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		var avatar sql.NullString
		if err := rows.Scan(
			&u.ID,
			&u.Email,
			&u.DisplayName,
			&avatar,
			&u.CreatedAt,
		); err != nil {
			return nil, err
		}
		if avatar.Valid {
			u.AvatarURL = avatar.String
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}
