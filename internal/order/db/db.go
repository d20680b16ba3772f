package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-enrollment/internal/models"
	"ms-enrollment/internal/order"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- ORDERS ----------------

// CreateOrder → insert a new order; OrderID is filled from the database
func (d *DB) CreateOrder(ctx context.Context, o *models.Order) error {
	_, err := d.Bun.NewInsert().Model(o).Exec(ctx)
	return err
}

// GetOrderByID → fetch one order, nil when absent
func (d *DB) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var o models.Order
	err := d.Bun.NewSelect().
		Model(&o).
		Where("order_id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetOrderCreatedSince → fetch an order only if it was created at or after since
func (d *DB) GetOrderCreatedSince(ctx context.Context, id int64, since time.Time) (*models.Order, error) {
	var o models.Order
	err := d.Bun.NewSelect().
		Model(&o).
		Where("order_id = ?", id).
		Where("created_at >= ?", since.UTC()).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrdersByUser → newest first
func (d *DB) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	orders := []models.Order{}
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		Order("created_at DESC", "order_id DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// TransitionState → conditional update keyed on the expected prior state.
// Returns false when no row matched, i.e. the order is gone or already moved.
func (d *DB) TransitionState(ctx context.Context, t order.Transition) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("state = ?", t.To).
		Set("updated_at = ?", t.At.UTC())

	if t.TransferAccountLast5 != "" {
		q = q.Set("transfer_account_last5 = ?", t.TransferAccountLast5)
	}
	if t.TransferTime != nil {
		q = q.Set("transfer_time = ?", t.TransferTime.UTC())
	}

	res, err := q.
		Where("order_id = ?", t.OrderID).
		Where("state = ?", t.From).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CountOrdersByState → number of orders per state, for the staff stats page
func (d *DB) CountOrdersByState(ctx context.Context) (map[models.OrderState]int, error) {
	var rows []struct {
		State models.OrderState `bun:"state"`
		Count int               `bun:"count"`
	}
	err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Column("state").
		ColumnExpr("COUNT(*) AS count").
		Group("state").
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	counts := make(map[models.OrderState]int, len(rows))
	for _, r := range rows {
		counts[r.State] = r.Count
	}
	return counts, nil
}

// ---------------- PROFILES ----------------

// GetProfile → fetch a buyer profile, nil when absent
func (d *DB) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	err := d.Bun.NewSelect().
		Model(&p).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertProfile → insert or refresh a buyer profile from a registration event.
// An existing student_id is never reassigned.
func (d *DB) UpsertProfile(ctx context.Context, p *models.Profile) error {
	q := d.Bun.NewInsert().
		Model(p).
		On("CONFLICT (user_id) DO UPDATE").
		Set("full_name = EXCLUDED.full_name").
		Set("auth_provider = EXCLUDED.auth_provider").
		Set("push_channel_id = EXCLUDED.push_channel_id")
	if p.StudentID == 0 {
		q = q.ExcludeColumn("student_id").Returning("student_id")
	}
	_, err := q.Exec(ctx)
	return err
}
