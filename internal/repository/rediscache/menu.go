package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Xausdorf/mensa-bot/internal/domain"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	mealsKeyFormat = "mensa:meals:%d:%s"
	DefaultTTL     = time.Hour
)

// MenuCache stores the meals of a day as JSON strings.
type MenuCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewMenuCache(rdb *redis.Client, ttl time.Duration) *MenuCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MenuCache{
		rdb: rdb,
		ttl: ttl,
	}
}

func mealsKey(id int, date time.Time) string {
	return fmt.Sprintf(mealsKeyFormat, id, date.Format(time.DateOnly))
}

func (c *MenuCache) GetMeals(ctx context.Context, id int, date time.Time) ([]domain.Meal, bool, error) {
	data, err := c.rdb.Get(ctx, mealsKey(id, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("could not read meals from redis: %w", err)
	}

	var meals []domain.Meal
	if err = json.Unmarshal(data, &meals); err != nil {
		return nil, false, fmt.Errorf("could not decode cached meals: %w", err)
	}
	return meals, true, nil
}

func (c *MenuCache) SetMeals(ctx context.Context, id int, date time.Time, meals []domain.Meal) error {
	data, err := json.Marshal(meals)
	if err != nil {
		return fmt.Errorf("could not encode meals: %w", err)
	}
	if err = c.rdb.Set(ctx, mealsKey(id, date), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("could not write meals to redis: %w", err)
	}
	return nil
}
