package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Xausdorf/mensa-bot/internal/domain"
	"github.com/rs/zerolog/log"
)

type MenuSource interface {
	Canteen(ctx context.Context, id int) (domain.Canteen, error)
	Meals(ctx context.Context, id int, date time.Time) ([]domain.Meal, error)
}

type MenuCache interface {
	GetMeals(ctx context.Context, id int, date time.Time) ([]domain.Meal, bool, error)
	SetMeals(ctx context.Context, id int, date time.Time, meals []domain.Meal) error
}

type Menu struct {
	source    MenuSource
	cache     MenuCache
	canteenID int
	now       func() time.Time

	mu      sync.Mutex
	canteen *domain.Canteen
}

// NewMenu creates the menu service. cache may be nil.
func NewMenu(source MenuSource, cache MenuCache, canteenID int) *Menu {
	return &Menu{
		source:    source,
		cache:     cache,
		canteenID: canteenID,
		now:       time.Now,
	}
}

func (m *Menu) CanteenID() int {
	return m.canteenID
}

// Day returns the main dishes of today plus offset days.
func (m *Menu) Day(ctx context.Context, offset int) (*domain.Menu, error) {
	canteen, err := m.getCanteen(ctx)
	if err != nil {
		return nil, err
	}

	date := m.now().AddDate(0, 0, offset)
	meals, err := m.meals(ctx, date)
	if err != nil {
		return nil, err
	}

	return &domain.Menu{
		Canteen: canteen,
		Date:    date,
		Lines:   domain.GroupMains(meals),
	}, nil
}

func (m *Menu) getCanteen(ctx context.Context) (domain.Canteen, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.canteen != nil {
		return *m.canteen, nil
	}
	canteen, err := m.source.Canteen(ctx, m.canteenID)
	if err != nil {
		return domain.Canteen{}, fmt.Errorf("could not retrieve canteen: %w", err)
	}
	m.canteen = &canteen
	return canteen, nil
}

func (m *Menu) meals(ctx context.Context, date time.Time) ([]domain.Meal, error) {
	if m.cache != nil {
		meals, ok, err := m.cache.GetMeals(ctx, m.canteenID, date)
		if err != nil {
			log.Warn().Err(err).Msg("Menu cache lookup failed, asking the API")
		} else if ok {
			return meals, nil
		}
	}

	meals, err := m.source.Meals(ctx, m.canteenID, date)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve meals: %w", err)
	}

	if m.cache != nil {
		if err = m.cache.SetMeals(ctx, m.canteenID, date, meals); err != nil {
			log.Warn().Err(err).Msg("Could not cache menu")
		}
	}
	return meals, nil
}
