package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/example/ec-checkout/internal/domain/inventory"
)

const stockKeyPrefix = "stock:"

// decrementStockScript checks and decrements in one server-side step.
var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return 0
end

current = tonumber(current)
if current >= quantity then
	redis.call('DECRBY', key, quantity)
	return 1
end
return 0
`)

// incrementStockScript restocks only counters that exist.
var incrementStockScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
return redis.call('INCRBY', KEYS[1], ARGV[1])
`)

// RedisLedger keeps stock counters in Redis under stock:<product id>.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func stockKey(productID string) string {
	return stockKeyPrefix + productID
}

func (l *RedisLedger) TryDecrement(ctx context.Context, productID string, quantity int) (bool, error) {
	if err := inventory.ValidateQuantity(quantity); err != nil {
		return false, err
	}
	res, err := decrementStockScript.Run(ctx, l.client, []string{stockKey(productID)}, quantity).Int()
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return res == 1, nil
}

func (l *RedisLedger) Increment(ctx context.Context, productID string, quantity int) error {
	if err := inventory.ValidateQuantity(quantity); err != nil {
		return err
	}
	res, err := incrementStockScript.Run(ctx, l.client, []string{stockKey(productID)}, quantity).Int()
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	if res < 0 {
		return fmt.Errorf("%w: %s", inventory.ErrUnknownProduct, productID)
	}
	return nil
}

func (l *RedisLedger) Available(ctx context.Context, productID string) (int, error) {
	n, err := l.client.Get(ctx, stockKey(productID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %s", inventory.ErrUnknownProduct, productID)
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Seed creates counters that do not exist yet. Existing counters are live
// stock and are left alone. It reports how many counters it created.
func (l *RedisLedger) Seed(ctx context.Context, stock map[string]int) (int, error) {
	created := 0
	for id, available := range stock {
		if available < 0 {
			return created, fmt.Errorf("%w: %s", inventory.ErrInvalidQuantity, id)
		}
		ok, err := l.client.SetNX(ctx, stockKey(id), available, 0).Result()
		if err != nil {
			return created, fmt.Errorf("seed stock %s: %w", id, err)
		}
		if ok {
			created++
		}
	}
	return created, nil
}
