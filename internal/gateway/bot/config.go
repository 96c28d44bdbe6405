package bot

import (
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	defaultPollOptions = "11:40,12:10,12:40,13:10,13:30,13:50"
	defaultListenAddr  = ":3000"
)

type Config struct {
	mmUserName string
	mmTeamName string
	mmToken    string
	mmServer   string
	// actionsURL - public base URL Mattermost calls back on button presses.
	actionsURL    string
	actionsListen string
	pollQuestion  string
	pollOptions   []string
}

func LoadConfig() Config {
	var cfg Config

	cfg.mmUserName = os.Getenv("MM_USERNAME")
	if cfg.mmUserName == "" {
		cfg.mmUserName = "MensaBot"
	}
	cfg.mmTeamName = os.Getenv("MM_TEAM")
	if cfg.mmTeamName == "" {
		cfg.mmTeamName = "MensaBot"
	}
	cfg.mmToken = os.Getenv("MM_TOKEN")
	if cfg.mmToken == "" {
		log.Fatal().Msg("Mattermost token is not set")
	}
	cfg.mmServer = os.Getenv("MM_SERVER")
	if cfg.mmServer == "" {
		log.Fatal().Msg("Mattermost URL is not set")
	}

	cfg.actionsListen = os.Getenv("ACTIONS_LISTEN")
	if cfg.actionsListen == "" {
		cfg.actionsListen = defaultListenAddr
	}
	cfg.actionsURL = strings.TrimSuffix(os.Getenv("ACTIONS_URL"), "/")
	if cfg.actionsURL == "" {
		log.Warn().Msg("Actions URL is not set, poll buttons are disabled")
	}

	cfg.pollQuestion = os.Getenv("POLL_QUESTION")
	options := os.Getenv("POLL_OPTIONS")
	if options == "" {
		options = defaultPollOptions
	}
	cfg.pollOptions = splitOptions(options)
	if len(cfg.pollOptions) == 0 {
		log.Fatal().Str("options", options).Msg("Poll options are empty")
	}

	return cfg
}

func (c Config) ActionsListen() string {
	return c.actionsListen
}

func (c Config) wsURL() string {
	switch {
	case strings.HasPrefix(c.mmServer, "https://"):
		return "wss://" + strings.TrimPrefix(c.mmServer, "https://")
	case strings.HasPrefix(c.mmServer, "http://"):
		return "ws://" + strings.TrimPrefix(c.mmServer, "http://")
	default:
		return c.mmServer
	}
}

func splitOptions(s string) []string {
	var options []string
	for _, option := range strings.Split(s, ",") {
		if option = strings.TrimSpace(option); option != "" {
			options = append(options, option)
		}
	}
	return options
}
