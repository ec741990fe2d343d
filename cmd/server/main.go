package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"subtrans/backend/internal/activity"
	"subtrans/backend/internal/cache"
	"subtrans/backend/internal/config"
	"subtrans/backend/internal/engine"
	"subtrans/backend/internal/handler"
	transport "subtrans/backend/internal/http"
	"subtrans/backend/internal/logger"
	"subtrans/backend/internal/provider"
	"subtrans/backend/internal/provider/anthropic"
	"subtrans/backend/internal/provider/openai"
	"subtrans/backend/internal/scheduler"
	"subtrans/backend/internal/session"
	"subtrans/backend/internal/snowflake"
)

func main() {
	cfg := config.Load()

	logger.Init(logger.ParseLevel(cfg.LogLevel))

	if err := snowflake.Init(1); err != nil {
		log.Fatalf("init snowflake: %v", err)
	}

	sessionStore, err := session.Open(cfg.SessionStorePath, 0, 0)
	if err != nil {
		log.Fatalf("open session store: %v", err)
	}

	var translationCache *cache.Cache
	if cfg.CacheTranslations {
		translationCache = cache.New(cfg.EntryCacheSize)
	} else {
		translationCache = cache.NewDisabled()
	}

	primary := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	var fallback *anthropic.Provider
	if cfg.AnthropicAPIKey != "" {
		fallback = anthropic.New(cfg.AnthropicAPIKey, "", cfg.AnthropicModel)
	}

	engineCfg := engine.DefaultConfig()
	engineCfg.MaxTokensPerBatch = cfg.MaxTokensPerBatch
	engineCfg.SingleBatchMaxTokensPerChunk = cfg.SingleBatchMaxTokensPerChunk
	engineCfg.BatchSizeOverride = cfg.TranslationBatchSize
	engineCfg.CacheEnabled = cfg.CacheTranslations
	engineCfg.EntryCacheSize = cfg.EntryCacheSize

	var fallbackTranslator provider.Translator
	if fallback != nil {
		fallbackTranslator = fallback
	}
	eng := engine.New(primary, fallbackTranslator, translationCache, engineCfg)

	bus := activity.New(activity.Config{
		MaxListenersPerConfig: cfg.StreamActivityMaxListenersPerConfig,
		HeartbeatInterval:     cfg.StreamActivityHeartbeat,
		MaxConnAge:            cfg.StreamActivityMaxConnAge,
		HeartbeatLogInterval:  cfg.StreamActivityHeartbeatLogInterval,
		RecordTTL:             cfg.StreamActivityTTL,
	})
	if cfg.RedisAddr != "" {
		if err := bus.EnableRedis(cfg.RedisAddr, cfg.RedisKeyPrefix); err != nil {
			logger.Warn("stream activity redis unavailable, degrading to single instance",
				"module", "main", "action", "connect", "resource", "redis", "result", "failed", "error", err)
		}
	}
	bus.Start()

	sessionHandler := handler.NewSessionHandler(sessionStore)
	activityHandler := handler.NewActivityHandler(bus)
	translateHandler := handler.NewTranslateHandler(sessionStore, eng)

	router := transport.NewRouter(sessionHandler, activityHandler, translateHandler)

	autosave := scheduler.New("session-autosave", 5*time.Minute, func(ctx context.Context) error {
		return sessionStore.Save()
	})
	autosave.Start()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		autosave.Stop()
		bus.Stop()
		if err := sessionStore.Save(); err != nil {
			log.Printf("final session save failed: %v", err)
		}

		if err := router.Shutdown(ctx); err != nil {
			log.Printf("server shutdown error: %v", err)
		}
	}()

	if err := router.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("start server: %v", err)
	}

	log.Println("server stopped")
}
