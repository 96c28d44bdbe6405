package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Xausdorf/mensa-bot/internal/domain"
	"github.com/Xausdorf/mensa-bot/internal/usecase"
	"github.com/mattermost/mattermost-server/v6/model"
)

type fakePoster struct {
	mu      sync.Mutex
	created []*model.Post
	updated []*model.Post
	users   map[string]string
	err     error
	resp    *model.Response
}

func (f *fakePoster) CreatePost(post *model.Post) (*model.Post, *model.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.resp, f.err
	}
	post.Id = fmt.Sprintf("post%d", len(f.created)+1)
	f.created = append(f.created, post)
	return post, &model.Response{StatusCode: http.StatusCreated}, nil
}

func (f *fakePoster) UpdatePost(postID string, post *model.Post) (*model.Post, *model.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.resp, f.err
	}
	if postID != post.Id {
		return nil, &model.Response{StatusCode: http.StatusBadRequest}, errors.New("post id mismatch")
	}
	f.updated = append(f.updated, post)
	return post, &model.Response{StatusCode: http.StatusOK}, nil
}

func (f *fakePoster) GetUser(userID, _ string) (*model.User, *model.Response, error) {
	name, ok := f.users[userID]
	if !ok {
		return nil, &model.Response{StatusCode: http.StatusNotFound}, errors.New("user not found")
	}
	return &model.User{Id: userID, Username: name}, &model.Response{StatusCode: http.StatusOK}, nil
}

func (f *fakePoster) lastCreated(t *testing.T) *model.Post {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		t.Fatal("Expected a created post")
	}
	return f.created[len(f.created)-1]
}

func (f *fakePoster) lastUpdated(t *testing.T) *model.Post {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updated) == 0 {
		t.Fatal("Expected an updated post")
	}
	return f.updated[len(f.updated)-1]
}

type fakeSource struct{}

func (fakeSource) Canteen(_ context.Context, id int) (domain.Canteen, error) {
	return domain.Canteen{ID: id, Name: "Mensa Am Adenauerring"}, nil
}

func (fakeSource) Meals(_ context.Context, _ int, _ time.Time) ([]domain.Meal, error) {
	price := 2.9
	return []domain.Meal{{Name: "Currywurst", Category: "Linie 1", Prices: domain.Prices{Students: &price}}}, nil
}

func getTestConfig() Config {
	return Config{
		actionsURL:   "http://bot.local",
		pollQuestion: "Lunch?",
		pollOptions:  []string{"11:40", "12:10"},
	}
}

func setupBot(t *testing.T) (*PollingBot, *fakePoster) {
	t.Helper()
	p := &fakePoster{users: map[string]string{"u1": "alice", "u2": "bob"}}
	menu := usecase.NewMenu(fakeSource{}, nil, 31)
	return newBot(getTestConfig(), p, usecase.NewLifecycle(nil), menu), p
}

func command(b *PollingBot, userID, msg string) {
	b.handlePost(context.Background(), &model.Post{Id: "cmd", ChannelId: "town-square", UserId: userID, Message: msg})
}

func attachmentText(t *testing.T, post *model.Post) (string, int) {
	t.Helper()
	attachments := post.Attachments()
	if len(attachments) != 1 {
		t.Fatalf("Expected one attachment, got %d", len(attachments))
	}
	return attachments[0].Text, len(attachments[0].Actions)
}

func TestOpenPollCommand(t *testing.T) {
	b, p := setupBot(t)

	command(b, "u1", "/daily_poll")
	text, actions := attachmentText(t, p.lastCreated(t))
	if !strings.Contains(text, "**Lunch?**") || !strings.Contains(text, "11:40 (0):") {
		t.Errorf("Unexpected poll text %q", text)
	}
	if actions != 5 {
		t.Errorf("Expected 2 time buttons plus Out, Flexible and Clear, got %d", actions)
	}

	command(b, "u1", "/daily_poll")
	reply := p.lastCreated(t)
	if reply.Message != "A poll is already running in this channel" || reply.RootId != "cmd" {
		t.Errorf("Unexpected reply %q", reply.Message)
	}
}

func TestVoteCommandUpdatesPollPost(t *testing.T) {
	b, p := setupBot(t)
	command(b, "u1", "/daily_poll")
	pollPostID := p.lastCreated(t).Id

	command(b, "u1", "/vote 1")
	command(b, "u2", "/vote flex")
	command(b, "u3", "/vote out")

	updated := p.lastUpdated(t)
	if updated.Id != pollPostID {
		t.Errorf("Expected poll post %s to be updated, got %s", pollPostID, updated.Id)
	}
	text, _ := attachmentText(t, updated)
	for _, s := range []string{"11:40 (1): bob", "12:10 (2): alice, bob", "Out (1): u3"} {
		if !strings.Contains(text, s) {
			t.Errorf("Expected %q in %q", s, text)
		}
	}
}

func TestInvalidVotesAreDropped(t *testing.T) {
	b, p := setupBot(t)
	command(b, "u1", "/daily_poll")
	created := len(p.created)

	command(b, "u1", "/vote 7")
	command(b, "u1", "/vote noon")

	if len(p.updated) != 0 {
		t.Errorf("Expected no updates, got %d", len(p.updated))
	}
	if len(p.created) != created {
		t.Errorf("Expected no replies to dropped votes, got %d new posts", len(p.created)-created)
	}
}

func TestClosePollCommand(t *testing.T) {
	b, p := setupBot(t)
	command(b, "u1", "/daily_poll")
	command(b, "u1", "/vote 0")
	command(b, "u2", "/vote 0")

	command(b, "u1", "/close_poll")
	announcement := p.lastCreated(t)
	if !strings.Contains(announcement.Message, "Chosen: **11:40** with alice, bob") {
		t.Errorf("Unexpected announcement %q", announcement.Message)
	}
	if _, actions := attachmentText(t, p.lastUpdated(t)); actions != 0 {
		t.Errorf("Expected buttons to be removed, got %d", actions)
	}

	updates := len(p.updated)
	command(b, "u1", "/vote 1")
	if len(p.updated) != updates {
		t.Error("Expected vote after close to be dropped")
	}

	command(b, "u1", "/close_poll")
	if reply := p.lastCreated(t); !strings.Contains(reply.Message, "Poll is already closed") ||
		!strings.Contains(reply.Message, "Chosen: **11:40**") {
		t.Errorf("Unexpected reply %q", reply.Message)
	}
}

func TestCloseWithoutPoll(t *testing.T) {
	b, p := setupBot(t)
	command(b, "u1", "/close_poll")
	if reply := p.lastCreated(t); reply.Message != "There is no poll to close" {
		t.Errorf("Unexpected reply %q", reply.Message)
	}
}

func TestDeliveryFailureKeepsPollOpen(t *testing.T) {
	b, p := setupBot(t)
	p.err = errors.New("i/o timeout")

	opened, err := b.OpenPoll(context.Background(), "town-square")
	if err != nil || !opened {
		t.Fatalf("Expected poll to open despite delivery failure, got %v %v", opened, err)
	}

	p.err = nil
	command(b, "u1", "/vote 0")
	snap, err := b.polls.Current(context.Background(), "town-square")
	if err != nil {
		t.Fatalf("Failed to get poll: %v", err)
	}
	if snap.Status != domain.StatusOpen || snap.Tally.Rows[0].Total() != 1 {
		t.Errorf("Expected open poll with one vote, got %v %d", snap.Status, snap.Tally.Rows[0].Total())
	}
}

func TestFailedReopenKeepsClosedPollPost(t *testing.T) {
	b, p := setupBot(t)
	command(b, "u1", "/daily_poll")
	closedPostID := p.lastCreated(t).Id
	command(b, "u1", "/vote 0")
	command(b, "u1", "/close_poll")
	updates := len(p.updated)

	p.err = errors.New("i/o timeout")
	if opened, err := b.OpenPoll(context.Background(), "town-square"); err != nil || !opened {
		t.Fatalf("Expected new poll to open, got %v %v", opened, err)
	}
	p.err = nil

	command(b, "u2", "/vote 1")
	for _, post := range p.updated[updates:] {
		if post.Id == closedPostID {
			text, actions := attachmentText(t, post)
			t.Errorf("Expected closed poll post to stay final, got %d buttons and %q", actions, text)
		}
	}

	snap, err := b.polls.Current(context.Background(), "town-square")
	if err != nil {
		t.Fatalf("Failed to get poll: %v", err)
	}
	if snap.Tally.Rows[1].Total() != 1 {
		t.Errorf("Expected the vote to reach the new poll, got %d", snap.Tally.Rows[1].Total())
	}
}

func TestConcurrentVotesRefreshLatestTally(t *testing.T) {
	b, p := setupBot(t)
	command(b, "u1", "/daily_poll")

	const voters = 20
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			command(b, fmt.Sprintf("voter%d", i), "/vote 0")
		}()
	}
	wg.Wait()

	text, _ := attachmentText(t, p.lastUpdated(t))
	if expected := fmt.Sprintf("11:40 (%d):", voters); !strings.Contains(text, expected) {
		t.Errorf("Expected last update to show %q, got %q", expected, text)
	}
}

func TestListenStopsAfterCancel(t *testing.T) {
	b, _ := setupBot(t)
	b.client = model.NewAPIv4Client("http://127.0.0.1:1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		b.Listen(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected Listen to return once the context is canceled")
	}
	if b.webSocketClient != nil {
		t.Error("Expected no websocket dial after cancel")
	}
}

func TestMenuCommands(t *testing.T) {
	b, p := setupBot(t)

	command(b, "u1", "/today")
	post := p.lastCreated(t)
	if !strings.Contains(post.Message, "Currywurst") {
		t.Errorf("Expected menu in %q", post.Message)
	}
	if _, actions := attachmentText(t, post); actions != 3 {
		t.Errorf("Expected 3 follow-up buttons, got %d", actions)
	}

	command(b, "u1", "/l6_tomorrow")
	if post = p.lastCreated(t); !strings.Contains(post.Message, "No menu available.") {
		t.Errorf("Expected no L6 menu in %q", post.Message)
	}
}

func TestUnknownCommand(t *testing.T) {
	b, p := setupBot(t)

	command(b, "u1", "/dance")
	if reply := p.lastCreated(t); reply.Message != "Sorry, I didn't understand that command." {
		t.Errorf("Unexpected reply %q", reply.Message)
	}

	command(b, "u1", "just chatting")
	if len(p.created) != 1 {
		t.Errorf("Expected plain messages to be ignored, got %d posts", len(p.created))
	}
}

func TestNewDeliveryError(t *testing.T) {
	tests := []struct {
		name     string
		resp     *model.Response
		err      error
		expected DeliveryKind
	}{
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), expected: DeliveryTimeout},
		{name: "bad request", resp: &model.Response{StatusCode: http.StatusBadRequest}, err: errors.New("invalid"), expected: DeliveryBadRequest},
		{name: "server error", resp: &model.Response{StatusCode: http.StatusInternalServerError}, err: errors.New("boom"), expected: DeliveryOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			derr := newDeliveryError(tt.resp, tt.err)
			if derr.Kind != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, derr.Kind)
			}
			if !errors.Is(derr, tt.err) {
				t.Error("Expected delivery error to wrap the cause")
			}
		})
	}
}

func TestWsURL(t *testing.T) {
	tests := map[string]string{
		"https://chat.example.com": "wss://chat.example.com",
		"http://localhost:8065":    "ws://localhost:8065",
		"ws://localhost:8065":      "ws://localhost:8065",
	}
	for server, expected := range tests {
		if got := (Config{mmServer: server}).wsURL(); got != expected {
			t.Errorf("wsURL(%q) = %q, expected %q", server, got, expected)
		}
	}
}

func TestSplitOptions(t *testing.T) {
	got := splitOptions(" 11:40, 12:10,,13:50 ")
	if strings.Join(got, "|") != "11:40|12:10|13:50" {
		t.Errorf("Unexpected options %v", got)
	}
}
