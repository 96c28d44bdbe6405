package bot

import (
	"context"
	"fmt"
	"math"

	"github.com/Xausdorf/mensa-bot/internal/domain"
	"github.com/Xausdorf/mensa-bot/internal/render"
	"github.com/Xausdorf/mensa-bot/internal/usecase"
	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/fiberzerolog"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/mattermost/mattermost-server/v6/model"
	"github.com/rs/zerolog/log"
)

// ActionServer receives Mattermost interactive button callbacks.
type ActionServer struct {
	app *fiber.App
	bot *PollingBot
}

func NewActionServer(bot *PollingBot) *ActionServer {
	app := fiber.New(fiber.Config{
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(fiberzerolog.New(fiberzerolog.Config{
		Logger: &log.Logger,
	}))

	s := &ActionServer{app: app, bot: bot}
	app.Post(actionsVotePath, s.handleVote)
	app.Post(actionsMenuPath, s.handleMenu)
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return s
}

func (s *ActionServer) Listen(addr string) error {
	log.Info().Str("addr", addr).Msg("Action server listening")
	return s.app.Listen(addr)
}

func (s *ActionServer) Shutdown() error {
	return s.app.Shutdown()
}

func parseRequest(c *fiber.Ctx) (*model.PostActionIntegrationRequest, error) {
	var req model.PostActionIntegrationRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return nil, fmt.Errorf("could not decode action request: %w", err)
	}
	return &req, nil
}

func (s *ActionServer) handleVote(c *fiber.Ctx) error {
	req, err := parseRequest(c)
	if err != nil {
		log.Warn().Err(err).Msg("Bad vote callback")
		return c.SendStatus(fiber.StatusBadRequest)
	}

	user := req.UserName
	if user == "" {
		user = s.bot.displayName(req.UserId)
	}

	pollID, action, err := parseVoteContext(req.Context)
	if err != nil {
		logDroppedVote(req.ChannelId, usecase.Vote{UserID: user}, err)
		return c.JSON(model.PostActionIntegrationResponse{})
	}

	snap, ok := s.bot.Vote(c.UserContext(), req.ChannelId, usecase.Vote{PollID: pollID, UserID: user, Action: action})
	if !ok {
		return c.JSON(model.PostActionIntegrationResponse{})
	}

	s.bot.rememberPollPost(snap.Scope, req.PostId)
	return c.JSON(model.PostActionIntegrationResponse{
		Update: s.bot.pollPost(snap, true),
	})
}

func (s *ActionServer) handleMenu(c *fiber.Ctx) error {
	req, err := parseRequest(c)
	if err != nil {
		log.Warn().Err(err).Msg("Bad menu callback")
		return c.SendStatus(fiber.StatusBadRequest)
	}

	if poll, _ := req.Context[ctxPoll].(bool); poll {
		opened, err := s.bot.OpenPoll(c.UserContext(), req.ChannelId)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open poll")
			return c.JSON(model.PostActionIntegrationResponse{EphemeralText: "Failed to start poll. Try again"})
		}
		if !opened {
			return c.JSON(model.PostActionIntegrationResponse{EphemeralText: "A poll is already running in this channel"})
		}
		return c.JSON(model.PostActionIntegrationResponse{})
	}

	offset, err := contextInt(req.Context, ctxOffset)
	if err != nil {
		log.Warn().Err(err).Msg("Bad menu callback")
		return c.SendStatus(fiber.StatusBadRequest)
	}
	lines := render.RegularLines
	if l, _ := req.Context[ctxLines].(string); l == string(render.L6Lines) {
		lines = render.L6Lines
	}

	// The menu API may be slow, answer the callback right away.
	go s.bot.PostMenu(context.Background(), req.ChannelId, offset, lines)
	return c.JSON(model.PostActionIntegrationResponse{})
}

// parseVoteContext turns a button context into a poll id and an action.
func parseVoteContext(values map[string]interface{}) (string, domain.Action, error) {
	pollID, _ := values[ctxPollID].(string)

	name, ok := values[ctxAction].(string)
	if !ok {
		return "", domain.Action{}, fmt.Errorf("%w: missing action", domain.ErrInvalidAction)
	}
	kind, err := domain.ParseActionKind(name)
	if err != nil {
		return "", domain.Action{}, err
	}

	action := domain.Action{Kind: kind}
	if kind == domain.ActionSelect {
		if action.Option, err = contextInt(values, ctxOption); err != nil {
			return "", domain.Action{}, err
		}
	}
	return pollID, action, nil
}

func contextInt(values map[string]interface{}, key string) (int, error) {
	switch v := values[key].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %s %v is not an integer", domain.ErrInvalidAction, key, v)
		}
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: missing %s", domain.ErrInvalidAction, key)
	}
}
