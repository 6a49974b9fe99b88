package user

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("user not found")

type Repository interface {
	GetByID(ctx context.Context, id string) (User, error)
}
