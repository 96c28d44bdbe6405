package openmensa

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/canteens/31", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":31,"name":"Mensa Am Adenauerring","city":"Karlsruhe"}`))
	})
	mux.HandleFunc("/canteens/31/days/2026-10-19/meals", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id":1,"name":"Currywurst","category":"Linie 1","notes":["Schwein"],
			 "prices":{"students":2.9,"employees":4.1,"pupils":null,"others":5.2}},
			{"id":2,"name":"Salat","category":"Linie 1","notes":[],
			 "prices":{"students":null,"employees":null,"pupils":null,"others":null}}
		]`))
	})
	mux.HandleFunc("/canteens/99", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestCanteen(t *testing.T) {
	client := NewClient(newTestServer(t).URL)

	canteen, err := client.Canteen(context.Background(), 31)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if canteen.ID != 31 || canteen.Name != "Mensa Am Adenauerring" {
		t.Errorf("Unexpected canteen %+v", canteen)
	}

	if _, err = client.Canteen(context.Background(), 99); !errors.Is(err, ErrBadStatusCode) {
		t.Errorf("Expected ErrBadStatusCode, got %v", err)
	}
	if _, err = client.Canteen(context.Background(), 7); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestMeals(t *testing.T) {
	client := NewClient(newTestServer(t).URL + "/")
	date := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	meals, err := client.Meals(context.Background(), 31, date)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(meals) != 2 {
		t.Fatalf("Expected 2 meals, got %d", len(meals))
	}
	if meals[0].Name != "Currywurst" || meals[0].Prices.Students == nil || *meals[0].Prices.Students != 2.9 {
		t.Errorf("Unexpected first meal %+v", meals[0])
	}
	if meals[0].Prices.Pupils != nil {
		t.Error("Expected missing pupils price")
	}
	if meals[1].Prices.Students != nil {
		t.Error("Expected missing student price for side dish")
	}

	closed, err := client.Meals(context.Background(), 31, date.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Expected closed day to be empty, got %v", err)
	}
	if len(closed) != 0 {
		t.Errorf("Expected no meals on closed day, got %d", len(closed))
	}
}
