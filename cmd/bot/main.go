// Package main contains the entrypoint for the report bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/imfbot/reportbot/internal/bot"
	"github.com/imfbot/reportbot/internal/bot/handlers"
	"github.com/imfbot/reportbot/internal/bot/tasks"
	"github.com/imfbot/reportbot/internal/config"
	"github.com/imfbot/reportbot/internal/database"
	"github.com/imfbot/reportbot/internal/delivery"
	"github.com/imfbot/reportbot/internal/gemini"
	"github.com/imfbot/reportbot/internal/health"
	"github.com/imfbot/reportbot/internal/logger"
	"github.com/imfbot/reportbot/internal/pipeline"
	"github.com/imfbot/reportbot/internal/report"
	"github.com/imfbot/reportbot/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all application components, starts the orchestrator, and
// returns the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}

	hDeps := &handlers.HandlerDeps{
		Logger: log,
		Config: cfg,
		Store:  store,
	}

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(handlers.NewCollectorHandler(hDeps)),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	me, err := tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	hDeps.BotID = me.ID
	hDeps.BotUsername = me.Username
	log.Info("Retrieved bot info", "bot_id", me.ID, "bot_username", me.Username)

	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(*hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	sender := telegram.NewSender(tg, cfg.Telegram.AdminChatID, cfg.Delivery.MaxMessageLength, log)
	dispatcher := delivery.NewDispatcher(sender, sender, store, cfg.Delivery, log)
	formatter := &report.Formatter{Tag: cfg.Report.Tag}
	pipe := pipeline.NewPipeline(store, gemClient, formatter, dispatcher, sender, cfg.Report, log)

	tDeps := tasks.TaskDeps{
		Logger:   log,
		Store:    store,
		Pipeline: pipe,
		Config:   cfg,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	healthServer := health.NewServer(cfg.Health.Addr, map[string]health.Checker{
		"database": health.CheckerFunc(store.Ping),
		"scheduler": health.CheckerFunc(func(context.Context) error {
			if !sched.Running() {
				return errors.New("scheduler not running")
			}
			return nil
		}),
	}, log)

	app := bot.NewBot(log, cfg, db, store, gemClient, tg, sched, healthServer)

	log.Info("Starting bot")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully")
	time.Sleep(time.Second)
	return 0
}
