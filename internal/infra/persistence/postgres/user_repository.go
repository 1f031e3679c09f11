package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	dom "example.com/pod-fulfillment/internal/domain/user"
)

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*dom.User, error) {
	var u dom.User
	var roleCode string
	err := r.pool.QueryRow(ctx, `
		SELECT u.id, u.name, u.email, u.password_hash, r.code
		FROM users u
		JOIN user_roles r ON u.user_role_id = r.id
		WHERE u.email = $1`, email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &roleCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, dom.ErrUserNotFound
	}
	if err != nil {
		return nil, storageErr(err)
	}
	role, err := dom.ParseRoleCode(roleCode)
	if err != nil {
		return nil, err
	}
	u.RoleCode = role
	return &u, nil
}
