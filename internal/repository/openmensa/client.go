package openmensa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Xausdorf/mensa-bot/internal/domain"
	"github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
)

const (
	DefaultBaseURL = "https://openmensa.org/api/v2/"
	defaultTimeout = 5 * time.Second
)

var (
	ErrNotFound      = errors.New("not found in openmensa")
	ErrBadStatusCode = errors.New("unexpected openmensa status code")
)

type canteenModel struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type mealModel struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Notes    []string `json:"notes"`
	Prices   struct {
		Students  *float64 `json:"students"`
		Employees *float64 `json:"employees"`
		Pupils    *float64 `json:"pupils"`
		Others    *float64 `json:"others"`
	} `json:"prices"`
}

func (m mealModel) toMeal() domain.Meal {
	return domain.Meal{
		ID:       m.ID,
		Name:     m.Name,
		Category: m.Category,
		Notes:    m.Notes,
		Prices: domain.Prices{
			Students:  m.Prices.Students,
			Employees: m.Prices.Employees,
			Pupils:    m.Prices.Pupils,
			Others:    m.Prices.Others,
		},
	}
}

// Client talks to the OpenMensa v2 REST API.
type Client struct {
	baseURL string
	client  *fasthttp.Client
	timeout time.Duration
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &Client{
		baseURL: baseURL,
		client: &fasthttp.Client{
			Name:                "mensa-bot",
			MaxIdleConnDuration: time.Minute,
		},
		timeout: defaultTimeout,
	}
}

func (c *Client) Canteen(ctx context.Context, id int) (domain.Canteen, error) {
	var canteen canteenModel
	if err := c.get(ctx, fmt.Sprintf("canteens/%d", id), &canteen); err != nil {
		return domain.Canteen{}, err
	}
	return domain.Canteen{ID: canteen.ID, Name: canteen.Name}, nil
}

// Meals returns every meal of the day. A closed day yields no meals.
func (c *Client) Meals(ctx context.Context, id int, date time.Time) ([]domain.Meal, error) {
	var models []mealModel
	err := c.get(ctx, fmt.Sprintf("canteens/%d/days/%s/meals", id, date.Format(time.DateOnly)), &models)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	meals := make([]domain.Meal, len(models))
	for i, m := range models {
		meals[i] = m.toMeal()
	}
	return meals, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return fmt.Errorf("could not request %s: %w", path, err)
	}

	switch code := resp.StatusCode(); {
	case code == fasthttp.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	case code != fasthttp.StatusOK:
		return fmt.Errorf("%s: %w: %d", path, ErrBadStatusCode, code)
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("could not decode %s: %w", path, err)
	}
	return nil
}
