// Package seeder loads demo users and profiles into a development database.
package seeder

import (
	"context"

	"matchengine/internal/database"
)

type Seeder interface {
	Name() string
	Run(ctx context.Context, db database.DB) error
}
