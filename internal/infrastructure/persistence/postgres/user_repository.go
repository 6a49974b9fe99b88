package postgres

import (
	"context"
	"errors"

	"matchengine/internal/database"
	"matchengine/internal/domain/user"
)

type UserRepository struct {
	db database.DB
}

func NewUserRepository(db database.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (user.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, status, last_active_at, created_at FROM users WHERE id = $1`,
		id,
	)
	return scanUser(row)
}

type userRow interface {
	Scan(dest ...any) error
}

func scanUser(row userRow) (user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.Status, &u.LastActiveAt, &u.CreatedAt); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}
