package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Xausdorf/mensa-bot/internal/domain"
	"github.com/Xausdorf/mensa-bot/internal/render"
	"github.com/Xausdorf/mensa-bot/internal/usecase"
)

type fakeAnnouncer struct {
	mu     sync.Mutex
	calls  []string
	polls  *usecase.Lifecycle
	called chan string
}

func newFakeAnnouncer() *fakeAnnouncer {
	return &fakeAnnouncer{polls: usecase.NewLifecycle(nil), called: make(chan string, 16)}
}

func (a *fakeAnnouncer) record(call string) {
	a.mu.Lock()
	a.calls = append(a.calls, call)
	a.mu.Unlock()
	a.called <- call
}

func (a *fakeAnnouncer) PostMenu(_ context.Context, channelID string, _ int, _ render.LineFilter) {
	a.record("menu:" + channelID)
}

func (a *fakeAnnouncer) OpenPoll(ctx context.Context, channelID string) (bool, error) {
	a.record("open:" + channelID)
	_, opened, err := a.polls.Open(ctx, channelID, "", []string{"11:40"})
	return opened, err
}

func (a *fakeAnnouncer) ClosePoll(ctx context.Context, channelID string) (*domain.Result, bool, error) {
	a.record("close:" + channelID)
	return a.polls.Close(ctx, channelID)
}

func testConfig() Config {
	return Config{
		channelID: "town-square",
		location:  time.UTC,
		menuSpec:  defaultMenuSpec,
		openSpec:  defaultOpenSpec,
		closeSpec: defaultCloseSpec,
	}
}

func TestNewSchedulesJobs(t *testing.T) {
	s, err := New(testConfig(), newFakeAnnouncer())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := len(s.cron.Entries()); got != 3 {
		t.Errorf("Expected 3 jobs, got %d", got)
	}

	cfg := testConfig()
	cfg.menuSpec = ""
	s, err = New(cfg, newFakeAnnouncer())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got := len(s.cron.Entries()); got != 2 {
		t.Errorf("Expected disabled menu job to be skipped, got %d jobs", got)
	}
}

func TestNewRejectsBadSpec(t *testing.T) {
	cfg := testConfig()
	cfg.openSpec = "every day at noon"
	if _, err := New(cfg, newFakeAnnouncer()); err == nil {
		t.Error("Expected error for invalid cron spec")
	}
}

func TestJobsAreIdempotent(t *testing.T) {
	announcer := newFakeAnnouncer()
	s, err := New(testConfig(), announcer)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	s.runJob("poll_close", s.closePoll)
	s.runJob("poll_open", s.openPoll)
	s.runJob("poll_open", s.openPoll)
	s.runJob("poll_close", s.closePoll)
	s.runJob("poll_close", s.closePoll)
	s.runJob("menu", s.postMenu)

	expected := []string{
		"close:town-square", "open:town-square", "open:town-square",
		"close:town-square", "close:town-square", "menu:town-square",
	}
	announcer.mu.Lock()
	defer announcer.mu.Unlock()
	if len(announcer.calls) != len(expected) {
		t.Fatalf("Expected %d calls, got %v", len(expected), announcer.calls)
	}
	for i := range expected {
		if announcer.calls[i] != expected[i] {
			t.Errorf("Call %d: expected %s, got %s", i, expected[i], announcer.calls[i])
		}
	}

	snap, err := announcer.polls.Current(context.Background(), "town-square")
	if err != nil || snap.Status != domain.StatusClosed {
		t.Errorf("Expected closed poll, got %v %v", snap.Status, err)
	}
}

func TestCronFiresJobs(t *testing.T) {
	announcer := newFakeAnnouncer()
	cfg := testConfig()
	cfg.menuSpec, cfg.openSpec, cfg.closeSpec = "@every 1s", "", ""

	s, err := New(cfg, announcer)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	s.Start()
	defer s.Stop()

	select {
	case call := <-announcer.called:
		if call != "menu:town-square" {
			t.Errorf("Expected menu job, got %s", call)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Expected menu job to fire")
	}
}
