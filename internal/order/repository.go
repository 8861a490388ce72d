package order

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"storefront/internal/logger"

	"go.uber.org/zap"
)

type Repository interface {
	// Create inserts o and fills in its ID and CreatedAt.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uint) (*Order, error)
	ListAll(ctx context.Context) ([]*Order, error)
	ListByUser(ctx context.Context, userID uint) ([]*Order, error)
	// UpdateStatus moves the order from one status to another and reports
	// false when the stored status was no longer from.
	UpdateStatus(ctx context.Context, id uint, from, to Status) (bool, error)
	Delete(ctx context.Context, id uint) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const orderColumns = `id, user_id, items_json, status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(ctx context.Context, row rowScanner) (*Order, error) {
	var (
		o   Order
		raw sql.NullString
	)
	if err := row.Scan(&o.ID, &o.UserID, &raw, &o.Status, &o.CreatedAt); err != nil {
		return nil, err
	}

	items, err := decodeItems(raw.String)
	if err != nil {
		logger.FromCtx(ctx).Warn("corrupt order items, returning empty line list",
			zap.Uint("order_id", o.ID),
			zap.Error(err),
		)
		items = make([]LineItem, 0)
	}
	o.Items = items
	return &o, nil
}

func (r *repository) Create(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrder"),
	)

	raw, err := encodeItems(o.Items)
	if err != nil {
		log.Error("failed to encode items", zap.Error(err))
		return err
	}

	var createdAt time.Time
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, items_json, status, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at`,
		o.UserID, raw, o.Status,
	).Scan(&o.ID, &createdAt)
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return err
	}
	o.CreatedAt = createdAt

	log.Info("order created",
		zap.Uint("order_id", o.ID),
		zap.Uint("user_id", o.UserID),
	)
	return nil
}

func (r *repository) GetByID(ctx context.Context, id uint) (*Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)

	o, err := scanOrder(ctx, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *repository) ListAll(ctx context.Context) ([]*Order, error) {
	return r.list(ctx, "ListAll",
		`SELECT `+orderColumns+` FROM orders ORDER BY id`)
}

func (r *repository) ListByUser(ctx context.Context, userID uint) ([]*Order, error) {
	return r.list(ctx, "ListByUser",
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY id`, userID)
}

func (r *repository) list(ctx context.Context, method, query string, args ...any) ([]*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", method),
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	orders := make([]*Order, 0)
	for rows.Next() {
		o, err := scanOrder(ctx, rows)
		if err != nil {
			log.Error("row scan failed", zap.Error(err))
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		log.Error("rows iteration failed", zap.Error(err))
		return nil, err
	}
	return orders, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uint, from, to Status) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`,
		to, id, from,
	)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to update order status",
			zap.String("layer", "repository"),
			zap.Uint("order_id", id),
			zap.Error(err),
		)
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *repository) Delete(ctx context.Context, id uint) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}
	return nil
}
