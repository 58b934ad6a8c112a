// Copyright (c) 2024, 0x0BSoD. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/0x0BSoD/medhum/internal/api"
	"github.com/0x0BSoD/medhum/internal/articles"
	"github.com/0x0BSoD/medhum/internal/assistant"
	"github.com/0x0BSoD/medhum/internal/config"
	"github.com/0x0BSoD/medhum/internal/fetcher"
	"github.com/0x0BSoD/medhum/internal/logger"
	"github.com/0x0BSoD/medhum/internal/metrics"
	"github.com/0x0BSoD/medhum/internal/notifier"
	"github.com/0x0BSoD/medhum/internal/reporter"
	"github.com/0x0BSoD/medhum/internal/storage"
	"github.com/0x0BSoD/medhum/internal/storage/filestore"
	"github.com/0x0BSoD/medhum/internal/storage/redisstore"
	"github.com/0x0BSoD/medhum/internal/storage/sqlstore"
)

func main() {
	cfg := config.Get()

	log, err := logger.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	medium, closer, err := openMedium(ctx, cfg)
	if err != nil {
		log.Fatal("failed to open storage", zap.String("backend", cfg.StorageBackend), zap.Error(err))
	}
	defer closer.Close()
	log.Info("storage opened", zap.String("backend", cfg.StorageBackend), zap.Int("quota", cfg.StorageQuota))

	store := articles.New(
		storage.WithQuota(medium, cfg.StorageQuota),
		articles.WithKey(cfg.StorageKey),
		articles.WithLogger(log.Named("articles")),
	)

	chat := assistant.New(newChatClient(cfg, log),
		assistant.WithSystemPrompt(cfg.AIPrompt),
		assistant.WithTemperature(cfg.AITemperature),
		assistant.WithWindow(cfg.AIHistoryWindow),
		assistant.WithTimeout(cfg.AITimeout),
		assistant.WithLogger(log.Named("assistant")),
	)

	drafter := fetcher.New(store,
		fetcher.WithFilterKeywords(cfg.FilterKeywords),
		fetcher.WithTimeout(cfg.FetchTimeout),
		fetcher.WithLogger(log.Named("fetcher")),
	)

	var errReporter *reporter.Reporter
	if cfg.TelegramBotToken != "" {
		botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			log.Fatal("failed to create botAPI", zap.Error(err))
		}
		errReporter = reporter.New(botAPI, cfg.TelegramAdminChatID, log.Named("reporter"))

		if cfg.TelegramChannelID != 0 {
			announcer := notifier.New(store, botAPI, cfg.TelegramChannelID, cfg.SiteURL, log.Named("notifier"))
			announcer.Prime(ctx)
			unsubscribe := store.Subscribe(announcer.Changed)
			defer unsubscribe()

			go func(ctx context.Context) {
				if err := announcer.Start(ctx); err != nil {
					if !errors.Is(err, context.Canceled) {
						log.Error("failed to run notifier", zap.Error(err))
						return
					}

					log.Info("notifier stopped")
				}
			}(ctx)
		}
	}

	server := api.New(
		api.Config{
			AdminUser:     cfg.AdminUser,
			AdminPassword: cfg.AdminPassword,
			SessionSecret: cfg.SessionSecret,
		},
		store,
		api.WithAssistant(chat),
		api.WithDrafter(drafter),
		api.WithReporter(errReporter),
		api.WithMetrics(metrics.New()),
		api.WithLogger(log.Named("api")),
	)

	if err := server.Run(ctx, cfg.HTTPAddr); err != nil {
		log.Error("failed to run http server", zap.Error(err))
		return
	}
	log.Info("http server stopped")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func openMedium(ctx context.Context, cfg config.Config) (storage.Medium, io.Closer, error) {
	switch cfg.StorageBackend {
	case config.BackendMemory:
		return storage.NewMemory(), nopCloser{}, nil
	case config.BackendFile:
		s, err := filestore.Open(cfg.StoragePath)
		return s, nopCloser{}, err
	case config.BackendRedis:
		client, err := redisstore.NewClient(redisstore.Config{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return redisstore.New(client, cfg.RedisPrefix), client, nil
	case config.BackendPostgres:
		s, err := sqlstore.Open(ctx, sqlstore.DriverPostgres, cfg.DatabaseDSN)
		return s, s, err
	case config.BackendSQLite:
		s, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, cfg.DatabaseDSN)
		return s, s, err
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// newChatClient returns nil when the selected backend is not configured; the assistant then answers
// with its "unavailable" reply.
func newChatClient(cfg config.Config, log *zap.Logger) assistant.Client {
	switch cfg.AIType {
	case "openai":
		if cfg.AIKey == "" {
			log.Warn(`ai_key is required when ai_type is "openai", chat is disabled`)
			return nil
		}
		log.Info("using OpenAI-compatible chat backend", zap.String("model", cfg.AIModel))
		return assistant.NewOpenAIClient(cfg.AIBaseURL, cfg.AIKey, cfg.AIModel)
	default:
		if cfg.AIBaseURL == "" {
			log.Warn(`ai_base_url is required when ai_type is "ollama", chat is disabled`)
			return nil
		}
		client, err := assistant.NewOllamaClient(cfg.AIBaseURL, cfg.AIModel)
		if err != nil {
			log.Warn("invalid ollama url, chat is disabled", zap.Error(err))
			return nil
		}
		log.Info("using Ollama chat backend", zap.String("model", cfg.AIModel))
		return client
	}
}
