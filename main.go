package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"interview-practice/internal/api"
	"interview-practice/internal/config"
	"interview-practice/internal/interviewer"
	"interview-practice/internal/logger"
	"interview-practice/internal/metrics"
	"interview-practice/internal/pricing"
	"interview-practice/internal/server"
	"interview-practice/internal/session"
	"interview-practice/internal/speech"
	"interview-practice/internal/telegram"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Failed to load .env file: %v", err)
	}

	appCfg := config.LoadAppConfig()
	if err := appCfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	zl, err := logger.New(appCfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	cfg, err := config.Load(appCfg.PracticeFile)
	if err != nil {
		zl.Fatal("failed to load practice configuration", zap.String("file", appCfg.PracticeFile), zap.Error(err))
	}

	if appCfg.FitWriteTimeout(cfg) {
		zl.Warn("SERVER_WRITE_TIMEOUT is shorter than a model call with repairs, raised",
			zap.Duration("write_timeout", appCfg.Server.WriteTimeout))
	}

	client := api.NewClient(appCfg.OpenAI)
	estimator := pricing.NewEstimator(pricing.TableFromConfig(cfg.Pricing))
	m := metrics.NewMetrics()

	svc := interviewer.New(client, cfg.Generation, cfg.Grading,
		interviewer.WithEstimator(estimator),
		interviewer.WithMetrics(m),
		interviewer.WithLogger(zl),
	)
	synth, trans := speech.New(client, cfg.Speech)
	params := session.ParamsFromConfig(cfg)

	zl.Info("practice configuration loaded",
		zap.String("role", params.Role),
		zap.String("subject", params.Subject),
		zap.String("level", string(params.Level)),
		zap.String("generation_model", cfg.Generation.Model),
		zap.String("grading_model", cfg.Grading.Model),
		zap.Bool("speech", cfg.Speech.Enabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpSessions := session.NewRegistry(func(id string) *session.Session {
		return session.New(svc, svc, params,
			session.WithID(id),
			session.WithSpeech(synth, trans),
			session.WithLogger(zl.With(zap.String("frontend", "http"))),
		)
	})
	httpSessions.OnChange(func(n int) { m.SetActiveSessions("http", n) })
	httpSessions.StartCleanup(ctx, cfg.Sessions.CleanupInterval, cfg.Sessions.IdleTimeout)

	if appCfg.TelegramEnabled() {
		chatSessions := session.NewRegistry(func(chatID int64) *session.Session {
			return session.New(svc, svc, params,
				session.WithSpeech(synth, trans),
				session.WithLogger(zl.With(zap.String("frontend", "telegram"), zap.Int64("chat_id", chatID))),
			)
		})
		chatSessions.OnChange(func(n int) { m.SetActiveSessions("telegram", n) })

		bot := telegram.New(appCfg.Telegram.Token, telegram.WithBotLogger(zl))
		handler := telegram.NewHandler(bot, chatSessions, zl)
		handler.StartCleanup(ctx, cfg.Sessions.CleanupInterval, cfg.Sessions.IdleTimeout)

		go func() {
			zl.Info("telegram bot polling started")
			err := bot.StartPolling(ctx, func(u telegram.Update) {
				if appCfg.Telegram.Debug {
					zl.Debug("telegram update", zap.Int("update_id", u.UpdateID))
				}
				handler.HandleUpdate(ctx, u)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("telegram polling stopped", zap.Error(err))
			}
		}()
	} else {
		zl.Info("TELEGRAM_BOT_TOKEN not set, telegram bot disabled")
	}

	srv := server.New(appCfg.Server, httpSessions, estimator, m, zl)
	if err := srv.Run(ctx); err != nil {
		zl.Fatal("http server failed", zap.Error(err))
	}
	zl.Info("stopped")
}
