package bot

import (
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"sync"

	"github.com/Xausdorf/mensa-bot/internal/domain"
	"github.com/Xausdorf/mensa-bot/internal/render"
	"github.com/Xausdorf/mensa-bot/internal/usecase"
	"github.com/goccy/go-json"
	"github.com/mattermost/mattermost-server/v6/model"
	"github.com/rs/zerolog/log"
)

const (
	maxRetries   = 5
	pollVoteArgs = 1
	historyLimit = 5
)

// poster - the part of the Mattermost API the bot writes through.
type poster interface {
	CreatePost(post *model.Post) (*model.Post, *model.Response, error)
	UpdatePost(postId string, post *model.Post) (*model.Post, *model.Response, error)
	GetUser(userId, etag string) (*model.User, *model.Response, error)
}

type PollingBot struct {
	cfg             Config
	client          *model.Client4
	poster          poster
	webSocketClient *model.WebSocketClient
	user            *model.User
	team            *model.Team
	polls           *usecase.Lifecycle
	menu            *usecase.Menu

	mu sync.Mutex
	// pollPosts - channel ID to the post ID of the channel's current poll message.
	pollPosts map[string]string
	// refreshLocks - per channel, orders poll message updates.
	refreshLocks map[string]*sync.Mutex
}

func NewPollingBot(cfg Config, polls *usecase.Lifecycle, menu *usecase.Menu) *PollingBot {
	client := model.NewAPIv4Client(cfg.mmServer)
	client.SetToken(cfg.mmToken)

	bot := newBot(cfg, client, polls, menu)
	bot.client = client

	user, resp, err := client.GetMe("")
	if err != nil {
		log.Fatal().Err(err).Msg("Could not log in")
	}
	log.Info().Str("user", user.Username).Int("status", resp.StatusCode).Msg("Logged in to mattermost")
	bot.user = user

	team, resp, err := client.GetTeamByName(cfg.mmTeamName, "")
	if err != nil {
		log.Fatal().Err(err).Str("team", cfg.mmTeamName).Msg("Could not find team")
	}
	log.Info().Str("team", team.Name).Int("status", resp.StatusCode).Msg("Team found")
	bot.team = team

	return bot
}

func newBot(cfg Config, p poster, polls *usecase.Lifecycle, menu *usecase.Menu) *PollingBot {
	return &PollingBot{
		cfg:          cfg,
		poster:       p,
		user:         &model.User{},
		polls:        polls,
		menu:         menu,
		pollPosts:    make(map[string]string),
		refreshLocks: make(map[string]*sync.Mutex),
	}
}

func (b *PollingBot) Listen(ctx context.Context) {
	for n := 0; n < maxRetries; n++ {
		if ctx.Err() != nil {
			return
		}
		var err error
		b.webSocketClient, err = model.NewWebSocketClient4(b.cfg.wsURL(), b.client.AuthToken)
		if err != nil {
			log.Warn().Err(err).Msg("Could not connect mattermost websocket, retrying...")
			continue
		}
		log.Info().Msg("Mattermost websocket succesfully connected")

		b.webSocketClient.Listen()

		log.Info().Msg("Mensa Bot listening now")
	events:
		for {
			select {
			case event, ok := <-b.webSocketClient.EventChannel:
				if !ok {
					if ctx.Err() != nil {
						return
					}
					ev := log.Warn()
					if appErr := b.webSocketClient.ListenError; appErr != nil {
						ev = ev.Err(appErr)
					}
					ev.Msg("Mattermost websocket closed, reconnecting...")
					break events
				}
				go b.handleWebSocketEvent(ctx, event)
			case <-ctx.Done():
				return
			}
		}
	}
	log.Fatal().Msg("Could not connect mattermost websocket, max retries exceeded")
}

func (b *PollingBot) Close() {
	if b.webSocketClient != nil {
		log.Info().Msg("Closing mattermost websocket connection")
		b.webSocketClient.Close()
	}
}

func (b *PollingBot) handleWebSocketEvent(ctx context.Context, event *model.WebSocketEvent) {
	if event.EventType() != model.WebsocketEventPosted {
		return
	}

	post := &model.Post{}
	eventData, ok := event.GetData()["post"].(string)
	if !ok {
		log.Warn().Msg("Could not cast event data to string")
		return
	}
	if err := json.Unmarshal([]byte(eventData), &post); err != nil {
		log.Warn().Err(err).Msg("Could not unmarshal event to *model.Post")
		return
	}

	if post.UserId == b.user.Id {
		return
	}

	b.handlePost(ctx, post)
}

func (b *PollingBot) handlePost(ctx context.Context, post *model.Post) {
	log.Debug().Str("channel", post.ChannelId).Str("msg", post.Message).Msg("Handling post")

	// CSV reading for splitting a string at spaces, except spaces inside quotation marks.
	r := csv.NewReader(strings.NewReader(post.Message))
	r.Comma = ' '
	tokens, err := r.Read()
	if err != nil {
		log.Debug().Err(err).Str("msg", post.Message).Msg("Could not split post's message")
		return
	}
	if len(tokens) == 0 || !strings.HasPrefix(tokens[0], "/") {
		return
	}

	switch tokens[0] {
	case "/start":
		b.handleStart(ctx, post)
	case "/today":
		b.PostMenu(ctx, post.ChannelId, 0, render.RegularLines)
	case "/tomorrow":
		b.PostMenu(ctx, post.ChannelId, 1, render.RegularLines)
	case "/l6_today":
		b.PostMenu(ctx, post.ChannelId, 0, render.L6Lines)
	case "/l6_tomorrow":
		b.PostMenu(ctx, post.ChannelId, 1, render.L6Lines)
	case "/daily_poll":
		b.handleOpen(ctx, post)
	case "/vote":
		b.handleVote(ctx, post, tokens[1:])
	case "/poll_results":
		b.handleResults(ctx, post)
	case "/close_poll":
		b.handleClose(ctx, post)
	case "/poll_history":
		b.handleHistory(ctx, post)
	case "/help":
		b.handleHelp(ctx, post)
	default:
		b.Respond(ctx, post, "Sorry, I didn't understand that command.")
	}
}

// Respond answers in the thread of the post. Delivery failures are logged only.
func (b *PollingBot) Respond(ctx context.Context, post *model.Post, msg string) {
	resp := &model.Post{}
	resp.ChannelId = post.ChannelId
	resp.Message = msg
	resp.RootId = post.Id

	_, _ = b.send(ctx, resp)
}

// Say posts a message to the channel. Delivery failures are logged only.
func (b *PollingBot) Say(ctx context.Context, channelID, msg string) {
	_, _ = b.send(ctx, &model.Post{ChannelId: channelID, Message: msg})
}

func (b *PollingBot) send(_ context.Context, post *model.Post) (*model.Post, error) {
	created, resp, err := b.poster.CreatePost(post)
	if err != nil {
		derr := newDeliveryError(resp, err)
		log.Warn().Err(derr).Str("channel", post.ChannelId).Str("kind", derr.Kind.String()).Msg("Could not deliver post")
		return nil, derr
	}
	return created, nil
}

func (b *PollingBot) update(_ context.Context, post *model.Post) error {
	if _, resp, err := b.poster.UpdatePost(post.Id, post); err != nil {
		derr := newDeliveryError(resp, err)
		log.Warn().Err(derr).Str("post", post.Id).Str("kind", derr.Kind.String()).Msg("Could not update post")
		return derr
	}
	return nil
}

// PostMenu sends the menu of today plus offset days to the channel.
func (b *PollingBot) PostMenu(ctx context.Context, channelID string, offset int, filter render.LineFilter) {
	menu, err := b.menu.Day(ctx, offset)
	if err != nil {
		log.Error().Err(err).Int("offset", offset).Msg("Failed to get menu")
		b.Say(ctx, channelID, "Could not fetch the menu. Try again later")
		return
	}
	_, _ = b.send(ctx, b.menuPost(channelID, render.MenuView(menu, filter), offset))
}

// OpenPoll starts the lunch poll in the channel. A running poll is kept
// and opened is false.
func (b *PollingBot) OpenPoll(ctx context.Context, channelID string) (bool, error) {
	snap, opened, err := b.polls.Open(ctx, channelID, b.cfg.pollQuestion, b.cfg.pollOptions)
	if err != nil {
		return false, err
	}
	if !opened {
		log.Info().Str("channel", channelID).Str("poll", snap.PollID).Msg("Poll already open, keeping it")
		return false, nil
	}
	log.Info().Str("channel", channelID).Str("poll", snap.PollID).Msg("Poll opened")

	// The previous poll's message keeps its final view, even if this post fails.
	b.forgetPollPost(channelID)

	created, err := b.send(ctx, b.pollPost(snap, true))
	if err != nil {
		// The poll stays open, votes can still come in via /vote.
		return true, nil
	}

	b.rememberPollPost(channelID, created.Id)
	return true, nil
}

// ClosePoll finalizes the channel's poll and announces the result.
// closed is false when the poll was already closed.
func (b *PollingBot) ClosePoll(ctx context.Context, channelID string) (*domain.Result, bool, error) {
	result, closed, err := b.polls.Close(ctx, channelID)
	if err != nil {
		return nil, false, err
	}
	if !closed {
		return result, false, nil
	}
	log.Info().Str("channel", channelID).Str("poll", result.PollID).Str("decision", result.Decision.Kind.String()).Msg("Poll closed")

	b.Say(ctx, channelID, render.ResultView(result))

	b.refreshPollPost(ctx, channelID)
	return result, true, nil
}

// Vote applies a voter action and refreshes the poll message.
// Invalid and stale actions are dropped.
func (b *PollingBot) Vote(ctx context.Context, channelID string, vote usecase.Vote) (usecase.Snapshot, bool) {
	snap, err := b.polls.RecordVote(ctx, channelID, vote)
	if err != nil {
		logDroppedVote(channelID, vote, err)
		return usecase.Snapshot{}, false
	}
	return snap, true
}

func logDroppedVote(channelID string, vote usecase.Vote, err error) {
	reason := "invalid"
	if errors.Is(err, usecase.ErrPollNotFound) || errors.Is(err, usecase.ErrPollIsNotActive) || errors.Is(err, usecase.ErrStalePoll) {
		reason = "stale"
	}
	log.Debug().Err(err).
		Str("channel", channelID).
		Str("user", vote.UserID).
		Str("action", vote.Action.String()).
		Str("reason", reason).
		Msg("Vote dropped")
}

func (b *PollingBot) rememberPollPost(channelID, postID string) {
	if postID == "" {
		return
	}
	b.mu.Lock()
	b.pollPosts[channelID] = postID
	b.mu.Unlock()
}

func (b *PollingBot) forgetPollPost(channelID string) {
	b.mu.Lock()
	delete(b.pollPosts, channelID)
	b.mu.Unlock()
}

func (b *PollingBot) refreshLock(channelID string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	lock, ok := b.refreshLocks[channelID]
	if !ok {
		lock = &sync.Mutex{}
		b.refreshLocks[channelID] = lock
	}
	return lock
}

// refreshPollPost rewrites the channel's poll message with the current tally.
// The snapshot is taken under the channel's lock, so a late update never
// shows an older tally than an earlier one.
func (b *PollingBot) refreshPollPost(ctx context.Context, channelID string) {
	lock := b.refreshLock(channelID)
	lock.Lock()
	defer lock.Unlock()

	b.mu.Lock()
	postID, ok := b.pollPosts[channelID]
	b.mu.Unlock()
	if !ok {
		return
	}

	snap, err := b.polls.Current(ctx, channelID)
	if err != nil {
		log.Debug().Err(err).Str("channel", channelID).Msg("Nothing to refresh")
		return
	}

	post := b.pollPost(snap, snap.Status == domain.StatusOpen)
	post.Id = postID
	_ = b.update(ctx, post)
}

func (b *PollingBot) handleStart(ctx context.Context, post *model.Post) {
	b.Respond(ctx, post, "Welcome to MensaBot! Try /today or /daily_poll.")
}

func (b *PollingBot) handleOpen(ctx context.Context, post *model.Post) {
	opened, err := b.OpenPoll(ctx, post.ChannelId)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open poll")
		b.Respond(ctx, post, "Failed to start poll. Try again")
		return
	}
	if !opened {
		b.Respond(ctx, post, "A poll is already running in this channel")
	}
}

func (b *PollingBot) handleVote(ctx context.Context, post *model.Post, args []string) {
	// /vote [option number|out|flex|clear]
	if len(args) != pollVoteArgs {
		b.Respond(ctx, post, "There must be 1 argument: option's number, out, flex or clear")
		return
	}

	action, err := domain.ParseVoteArg(args[0])
	if err != nil {
		logDroppedVote(post.ChannelId, usecase.Vote{UserID: post.UserId}, err)
		return
	}

	if _, ok := b.Vote(ctx, post.ChannelId, usecase.Vote{UserID: b.displayName(post.UserId), Action: action}); ok {
		b.refreshPollPost(ctx, post.ChannelId)
	}
}

func (b *PollingBot) handleResults(ctx context.Context, post *model.Post) {
	snap, err := b.polls.Current(ctx, post.ChannelId)
	if errors.Is(err, usecase.ErrPollNotFound) {
		b.Respond(ctx, post, "There is no poll in this channel")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to get poll results")
		b.Respond(ctx, post, "Failed to obtain poll results. Try again")
		return
	}
	b.Respond(ctx, post, render.LiveView(snap.Question, snap.Tally))
}

func (b *PollingBot) handleClose(ctx context.Context, post *model.Post) {
	result, closed, err := b.ClosePoll(ctx, post.ChannelId)
	if errors.Is(err, usecase.ErrPollNotFound) {
		b.Respond(ctx, post, "There is no poll to close")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to close poll")
		b.Respond(ctx, post, "Failed to close poll. Try again")
		return
	}
	if !closed {
		b.Respond(ctx, post, "Poll is already closed\n\n"+render.ResultView(result))
	}
}

func (b *PollingBot) handleHistory(ctx context.Context, post *model.Post) {
	results, err := b.polls.History(ctx, post.ChannelId, historyLimit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get poll history")
		b.Respond(ctx, post, "Failed to obtain poll history. Try again")
		return
	}
	b.Respond(ctx, post, render.HistoryView(results))
}

func (b *PollingBot) handleHelp(ctx context.Context, post *model.Post) {
	// /help
	b.Respond(ctx, post, `Available commands:
	* /help - info about commands

	* /today, /tomorrow - canteen menu of the day.

	* /l6_today, /l6_tomorrow - L6 menu of the day.

	* /daily_poll - starts the lunch time poll in this channel.

	* /vote [vote] - vote without buttons. Parameter [vote] is number of option in the poll, out, flex or clear.

	* /poll_results - shows the current tally.

	* /close_poll - closes the poll and announces the lunch time.

	* /poll_history - recent lunch decisions.`)
}

// displayName resolves the user's name, falling back to the ID.
func (b *PollingBot) displayName(userID string) string {
	user, _, err := b.poster.GetUser(userID, "")
	if err != nil || user.Username == "" {
		log.Debug().Err(err).Str("user", userID).Msg("Could not resolve username")
		return userID
	}
	return user.Username
}
