package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	botpkg "github.com/llamagram/llamagram/internal/bot"
	"github.com/llamagram/llamagram/internal/chat"
	"github.com/llamagram/llamagram/internal/config"
	"github.com/llamagram/llamagram/internal/control"
	"github.com/llamagram/llamagram/internal/db"
	"github.com/llamagram/llamagram/internal/dispatch"
	"github.com/llamagram/llamagram/internal/dummy"
	"github.com/llamagram/llamagram/internal/functions"
	"github.com/llamagram/llamagram/internal/llama"
	"github.com/llamagram/llamagram/internal/telegram"
)

func main() {
	cfg, err := config.LoadBotConfig()
	if err != nil {
		log.Fatalf("[bot] %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var database *sql.DB
	if cfg.DBPath != "" {
		database, err = db.OpenDB(cfg.DBPath)
		if err != nil {
			log.Fatalf("[bot] %v", err)
		}
		defer database.Close()
		if err := db.InitSchema(database); err != nil {
			log.Fatalf("[bot] failed to init schema: %v", err)
		}
	}
	recorder := db.NewRecorder(database)

	registry := functions.NewRegistry()
	if err := functions.RegisterBuiltins(registry); err != nil {
		log.Fatalf("[bot] failed to register functions: %v", err)
	}

	completer, err := newCompleter(ctx, &cfg, registry)
	if err != nil {
		log.Fatalf("[bot] %v", err)
	}

	store := chat.NewStore(cfg.HistoryLimit)
	generator := &chat.Generator{
		Store:     store,
		Completer: completer,
		Assembler: &chat.Assembler{
			SystemPrompt:  cfg.SystemPrompt,
			HistoryLimit:  cfg.HistoryLimit,
			ContextWindow: cfg.ContextWindow,
		},
		Breaker:  control.NewCircuitBreaker(5, 30*time.Second),
		Recorder: recorder,
		Timeout:  cfg.GenerationTimeout,
		FullLog:  cfg.FullLog,
	}

	// The default handler closes over handlers, which need the messenger,
	// which wraps the API client: break the cycle with a late-bound
	// pointer. Assignment happens before Start, so handlers never see nil.
	var handlers *botpkg.Bot
	api, err := tgbot.New(cfg.TelegramToken, tgbot.WithDefaultHandler(
		func(hctx context.Context, b *tgbot.Bot, update *models.Update) {
			handlers.HandleMessage(hctx, b, update)
		},
	))
	if err != nil {
		log.Fatalf("[bot] failed to create telegram client: %v", err)
	}

	messenger := telegram.NewBot(api)
	typing := dispatch.NewTyping(messenger, dispatch.DefaultTypingInterval)
	defer typing.StopAll()

	handlers = botpkg.New(cfg, store, generator, dispatch.NewGate(), typing, messenger, recorder)
	api.RegisterHandler(tgbot.HandlerTypeMessageText, cfg.CommandPrefix+"clear", tgbot.MatchTypePrefix, handlers.HandleClear)
	api.RegisterHandler(tgbot.HandlerTypeMessageText, cfg.CommandPrefix+"ping", tgbot.MatchTypePrefix, handlers.HandlePing)

	startedID := recorder.Log(nil, db.EventProcessStarted, map[string]any{
		"pid":      os.Getpid(),
		"provider": cfg.ModelProvider,
		"model":    cfg.Model,
		"stream":   cfg.StreamMode,
	})

	log.Printf("[bot] running model=%s provider=%s stream=%t history_limit=%d only_dm=%t",
		cfg.Model, cfg.ModelProvider, cfg.StreamMode, cfg.HistoryLimit, cfg.OnlyDM)

	api.Start(ctx)

	recorder.Log(&startedID, db.EventProcessStopped, nil)
	log.Printf("[bot] shutting down")
}

func newCompleter(ctx context.Context, cfg *config.BotConfig, registry *functions.Registry) (chat.Completer, error) {
	switch cfg.ModelProvider {
	case "llama":
		client := llama.NewClient(cfg.LlamaBaseURL, cfg.LlamaAPIKey, cfg.Model, llama.Params{
			MaxTokens:     cfg.MaxTokens,
			Temperature:   cfg.Temperature,
			TopK:          cfg.TopK,
			TopP:          cfg.TopP,
			MinP:          cfg.MinP,
			RepeatPenalty: cfg.RepeatPenalty,
		}, registry)
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx); err != nil {
			return nil, err
		}
		log.Printf("[bot] llama server ready at %s", cfg.LlamaBaseURL)
		return client, nil
	case "dummy":
		return dummy.NewProvider(cfg.DummyScript)
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", cfg.ModelProvider)
	}
}
