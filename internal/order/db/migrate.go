package db

import (
	"context"
	"fmt"

	"ms-enrollment/internal/models"

	"github.com/uptrace/bun"
)

// CreateSchema builds the tables straight from the bun models. Production
// databases are migrated with cmd/migrate; this serves local sqlite runs and tests.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range []interface{}{(*models.Order)(nil), (*models.Profile)(nil)} {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*models.Order)(nil)).
		Index("orders_user_id_idx").
		IfNotExists().
		Column("user_id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create orders index: %w", err)
	}
	return nil
}
