package mysql

import (
	"context"
	"database/sql"
	"errors"

	dom "example.com/pod-fulfillment/internal/domain/user"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*dom.User, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT u.id, u.name, u.email, u.password_hash, r.code
        FROM users u
        JOIN user_roles r ON u.user_role_id = r.id
        WHERE u.email = ?
    `, email)

	var u dom.User
	var roleCode string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &roleCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dom.ErrUserNotFound
		}
		return nil, storageErr(err)
	}
	role, err := dom.ParseRoleCode(roleCode)
	if err != nil {
		return nil, err
	}
	u.RoleCode = role
	return &u, nil
}
