package user

import (
	"context"
	"database/sql"
	"errors"

	"storefront/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	Create(ctx context.Context, username, password string, role Role) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id uint) (*User, error)
	List(ctx context.Context) ([]*User, error)
	ListByRole(ctx context.Context, role Role) ([]*User, error)
	UpdateRole(ctx context.Context, id uint, role Role) error
	CountByRole(ctx context.Context, role Role) (int, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const userColumns = `id, username, password, role, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *repository) Create(ctx context.Context, username, password string, role Role) (*User, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateUser"),
	)

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password, role, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING `+userColumns,
		username, password, role,
	)

	u, err := scanUser(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == PgUniqueViolation {
			return nil, ErrUsernameExists
		}
		log.Error("db: failed to insert user",
			zap.String("username", username),
			zap.Error(err),
		)
		return nil, err
	}
	return u, nil
}

func (r *repository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *repository) FindByID(ctx context.Context, id uint) (*User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *repository) findOne(ctx context.Context, query string, arg any) (*User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (r *repository) List(ctx context.Context) ([]*User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
}

func (r *repository) ListByRole(ctx context.Context, role Role) ([]*User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY id`, role)
}

func (r *repository) list(ctx context.Context, query string, args ...any) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.FromCtx(ctx).Error("db: failed to list users", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	users := make([]*User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *repository) UpdateRole(ctx context.Context, id uint, role Role) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET role = $1 WHERE id = $2`, role, id)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *repository) CountByRole(ctx context.Context, role Role) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = $1`, role).Scan(&n)
	return n, err
}
