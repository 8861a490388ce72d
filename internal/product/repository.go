package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Repository interface {
	Create(ctx context.Context, input NewProductInput) (*Product, error)
	GetByID(ctx context.Context, id uint) (*Product, error)
	List(ctx context.Context) ([]*Product, error)
	Search(ctx context.Context, keyword string) ([]*Product, error)
	Update(ctx context.Context, id uint, input UpdateProductInput) (*Product, error)
	Delete(ctx context.Context, id uint) error

	// ReduceStock and IncreaseStock return the stock left after the change.
	ReduceStock(ctx context.Context, id uint, qty int) (int, error)
	IncreaseStock(ctx context.Context, id uint, qty int) (int, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const productColumns = `id, name, price, stock, COALESCE(description, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*Product, error) {
	var p Product
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Description); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) Create(ctx context.Context, input NewProductInput) (*Product, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateProduct"),
	)

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO products (name, price, stock, description)
		VALUES ($1, $2, $3, $4)
		RETURNING `+productColumns,
		input.Name, input.Price, input.Stock, input.Description,
	)

	p, err := scanProduct(row)
	if err != nil {
		log.Error("failed to insert product", zap.Error(err))
		return nil, err
	}

	log.Info("product created", zap.Uint("product_id", p.ID))
	return p, nil
}

func (r *repository) GetByID(ctx context.Context, id uint) (*Product, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *repository) List(ctx context.Context) ([]*Product, error) {
	return r.query(ctx, "List",
		`SELECT `+productColumns+` FROM products ORDER BY id`)
}

func (r *repository) Search(ctx context.Context, keyword string) ([]*Product, error) {
	pattern := "%" + escapeLike(keyword) + "%"
	return r.query(ctx, "Search", `
		SELECT `+productColumns+`
		FROM products
		WHERE name ILIKE $1 OR description ILIKE $1
		ORDER BY id`, pattern)
}

func (r *repository) query(ctx context.Context, method, query string, args ...any) ([]*Product, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", method),
	)

	start := time.Now()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	products := make([]*Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			log.Error("row scan failed", zap.Error(err))
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		log.Error("rows iteration failed", zap.Error(err))
		return nil, err
	}

	log.Debug("query success",
		zap.Int("rows", len(products)),
		zap.Duration("duration", time.Since(start)),
	)
	return products, nil
}

// Update applies every non-nil field of input in one statement; COALESCE keeps
// the stored value for the fields left nil.
func (r *repository) Update(ctx context.Context, id uint, input UpdateProductInput) (*Product, error) {
	var (
		name        sql.NullString
		price       decimal.NullDecimal
		stock       sql.NullInt64
		description sql.NullString
	)
	if input.Name != nil {
		name = sql.NullString{String: *input.Name, Valid: true}
	}
	if input.Price != nil {
		price = decimal.NullDecimal{Decimal: *input.Price, Valid: true}
	}
	if input.Stock != nil {
		stock = sql.NullInt64{Int64: int64(*input.Stock), Valid: true}
	}
	if input.Description != nil {
		description = sql.NullString{String: *input.Description, Valid: true}
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = COALESCE($1, name),
		    price = COALESCE($2, price),
		    stock = COALESCE($3, stock),
		    description = COALESCE($4, description)
		WHERE id = $5
		RETURNING `+productColumns,
		name, price, stock, description, id,
	)

	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to update product",
			zap.Uint("product_id", id),
			zap.Error(err),
		)
		return nil, err
	}
	return p, nil
}

func (r *repository) Delete(ctx context.Context, id uint) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *repository) ReduceStock(ctx context.Context, id uint, qty int) (int, error) {
	var remaining int
	err := r.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock - $1
		WHERE id = $2 AND stock >= $1
		RETURNING stock`, qty, id,
	).Scan(&remaining)

	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	// Nothing updated: either the product is gone or the guard refused the decrement.
	var available int
	err = r.db.QueryRowContext(ctx,
		`SELECT stock FROM products WHERE id = $1`, id).Scan(&available)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, err
	}
	return available, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, qty, available)
}

func (r *repository) IncreaseStock(ctx context.Context, id uint, qty int) (int, error) {
	var stock int
	err := r.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $1
		WHERE id = $2
		RETURNING stock`, qty, id,
	).Scan(&stock)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrProductNotFound
	}
	if err != nil {
		return 0, err
	}
	return stock, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE wildcards so the keyword matches literally.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
