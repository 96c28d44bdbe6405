package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Xausdorf/mensa-bot/internal/gateway/bot"
	"github.com/Xausdorf/mensa-bot/internal/logger"
	"github.com/Xausdorf/mensa-bot/internal/repository/openmensa"
	"github.com/Xausdorf/mensa-bot/internal/repository/rediscache"
	"github.com/Xausdorf/mensa-bot/internal/repository/ttadapter"
	"github.com/Xausdorf/mensa-bot/internal/scheduler"
	"github.com/Xausdorf/mensa-bot/internal/usecase"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/tarantool/go-tarantool/v2"
	_ "github.com/tarantool/go-tarantool/v2/datetime"
	_ "github.com/tarantool/go-tarantool/v2/decimal"
	_ "github.com/tarantool/go-tarantool/v2/uuid"
)

type tarantoolConfig struct {
	address  string
	user     string
	password string
}

type redisConfig struct {
	address  string
	password string
	db       int
}

type mensaConfig struct {
	canteenID int
	baseURL   string
}

const (
	ttReconnectSeconds = 3
	ttMaxRecconects    = 5
	defaultCanteenID   = 31
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("Could not load .env file")
	}
	logger.Configure(logger.LevelFromEnv())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var archive usecase.ResultArchive
	if ttCfg, ok := loadTarantoolConfig(); ok {
		conn, err := connectTarantool(ctx, ttCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Connection to tarantool refused")
		}
		defer conn.Close()
		log.Info().Str("address", ttCfg.address).Msg("Succesfully connected to tarantool")
		archive = ttadapter.NewResultArchive(conn)
	} else {
		log.Info().Msg("Tarantool address is not set, poll results are not archived")
	}

	var cache usecase.MenuCache
	if rCfg, ok := loadRedisConfig(); ok {
		rdb := redis.NewClient(&redis.Options{
			Addr:     rCfg.address,
			Password: rCfg.password,
			DB:       rCfg.db,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis is not reachable, menu cache disabled")
		} else {
			cache = rediscache.NewMenuCache(rdb, rediscache.DefaultTTL)
		}
	}

	mCfg := loadMensaConfig()
	menuService := usecase.NewMenu(openmensa.NewClient(mCfg.baseURL), cache, mCfg.canteenID)
	pollService := usecase.NewLifecycle(archive)

	botConfig := bot.LoadConfig()
	mensaBot := bot.NewPollingBot(botConfig, pollService, menuService)

	actions := bot.NewActionServer(mensaBot)
	go func() {
		if err := actions.Listen(botConfig.ActionsListen()); err != nil {
			log.Error().Err(err).Msg("Action server stopped")
		}
	}()

	var sched *scheduler.Scheduler
	if schedCfg := scheduler.LoadConfig(); schedCfg.Enabled() {
		var err error
		sched, err = scheduler.New(schedCfg, mensaBot)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid schedule")
		}
		sched.Start()
	} else {
		log.Info().Msg("Schedule channel is not set, daily jobs are disabled")
	}

	setupGracefulShutdown(cancel, mensaBot, actions, sched)

	mensaBot.Listen(ctx)
}

func setupGracefulShutdown(cancel context.CancelFunc, b *bot.PollingBot, actions *bot.ActionServer, sched *scheduler.Scheduler) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		log.Info().Msg("Shutting down")
		if sched != nil {
			sched.Stop()
		}
		if err := actions.Shutdown(); err != nil {
			log.Warn().Err(err).Msg("Action server shutdown failed")
		}
		cancel()
		b.Close()
	}()
}

func loadTarantoolConfig() (tarantoolConfig, bool) {
	var cfg tarantoolConfig

	cfg.address = os.Getenv("TT_ADDRESS")
	if cfg.address == "" {
		return cfg, false
	}
	cfg.user = os.Getenv("TT_USER")
	if cfg.user == "" {
		log.Fatal().Msg("Tarantool user is not set")
	}
	cfg.password = os.Getenv("TT_PASSWORD")
	if cfg.password == "" {
		log.Fatal().Msg("Tarantool password is not set")
	}

	return cfg, true
}

func connectTarantool(ctx context.Context, cfg tarantoolConfig) (*tarantool.Connection, error) {
	dialer := tarantool.NetDialer{
		Address:  cfg.address,
		User:     cfg.user,
		Password: cfg.password,
	}
	opts := tarantool.Opts{
		Timeout:       time.Second,
		Reconnect:     ttReconnectSeconds * time.Second,
		MaxReconnects: ttMaxRecconects,
	}

	return tarantool.Connect(ctx, dialer, opts)
}

func loadRedisConfig() (redisConfig, bool) {
	var cfg redisConfig

	cfg.address = os.Getenv("REDIS_ADDRESS")
	if cfg.address == "" {
		return cfg, false
	}
	cfg.password = os.Getenv("REDIS_PASSWORD")
	if db := os.Getenv("REDIS_DB"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			log.Fatal().Str("db", db).Msg("Redis DB must be a number")
		}
		cfg.db = n
	}

	return cfg, true
}

func loadMensaConfig() mensaConfig {
	cfg := mensaConfig{canteenID: defaultCanteenID}

	if id := os.Getenv("MENSA_ID"); id != "" {
		n, err := strconv.Atoi(id)
		if err != nil {
			log.Fatal().Str("id", id).Msg("Mensa ID must be a number")
		}
		cfg.canteenID = n
	}
	cfg.baseURL = os.Getenv("MENSA_API")

	return cfg
}
