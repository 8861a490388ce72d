package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"storefront/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Checkout keys: idem:checkout:{user_id}:{key} -> "pending" | order id
const keyFormat = "idem:checkout:%d:%s"

const (
	DefaultTTL    = 24 * time.Hour
	MaxKeyLength  = 128
	pendingMarker = "pending"
)

var (
	ErrInProgress = errors.New("a checkout with this idempotency key is in progress")
	ErrInvalidKey = errors.New("invalid idempotency key")
)

func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func key(userID uint, k string) string {
	return fmt.Sprintf(keyFormat, userID, k)
}

// Begin claims k for the user. When k already finished, it returns the order
// id recorded for it and replay=true.
func (s *Store) Begin(ctx context.Context, userID uint, k string) (orderID uint, replay bool, err error) {
	if k == "" || len(k) > MaxKeyLength {
		return 0, false, ErrInvalidKey
	}
	rk := key(userID, k)

	claimed, err := s.rdb.SetNX(ctx, rk, pendingMarker, s.ttl).Result()
	if err != nil {
		return 0, false, err
	}
	if claimed {
		return 0, false, nil
	}

	val, err := s.rdb.Get(ctx, rk).Result()
	if errors.Is(err, redis.Nil) {
		// expired or aborted between the two calls
		return 0, false, ErrInProgress
	}
	if err != nil {
		return 0, false, err
	}
	if val == pendingMarker {
		return 0, false, ErrInProgress
	}

	id, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		logger.FromCtx(ctx).Warn("unreadable idempotency record",
			zap.String("key", rk),
			zap.String("value", val),
		)
		return 0, false, ErrInProgress
	}
	return uint(id), true, nil
}

// Complete records the order created under k.
func (s *Store) Complete(ctx context.Context, userID uint, k string, orderID uint) error {
	return s.rdb.Set(ctx, key(userID, k), strconv.FormatUint(uint64(orderID), 10), s.ttl).Err()
}

// Abort releases k so the user can retry with it.
func (s *Store) Abort(ctx context.Context, userID uint, k string) error {
	return s.rdb.Del(ctx, key(userID, k)).Err()
}
