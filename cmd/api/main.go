package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/emopulse/backend/internal/config"
	"github.com/zhouzirui/emopulse/backend/internal/handler"
	"github.com/zhouzirui/emopulse/backend/internal/logger"
	"github.com/zhouzirui/emopulse/backend/internal/service/ai"
	"github.com/zhouzirui/emopulse/backend/internal/service/chat"
	"github.com/zhouzirui/emopulse/backend/internal/service/orchestrator"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if envErr != nil {
		log.WithError(envErr).Debug("no .env file, using system environment only")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("EmoPulse backend stopped")
		stop()
		os.Exit(1)
	}
}

// run 构建所有依赖并阻塞直到 ctx 结束。任何返回路径都会关闭会话存储。
func run(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) error {
	store, closeStore, err := chat.Open(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("open %s conversation store: %w", cfg.Store.Backend, err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := closeStore(shutdownCtx); err != nil {
			log.WithError(err).Warn("failed to close conversation store")
		}
	}()
	log.WithField("backend", cfg.Store.Backend).Info("conversation store ready")

	var chatModel model.BaseChatModel
	if cfg.AI.Enabled() {
		cm, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			log.WithError(err).Warn("failed to create chat model, generation disabled - 请检查 Ark 模型相关环境变量")
		} else {
			chatModel = cm
		}
	} else {
		log.Warn("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	classifiers, err := orchestrator.ClassifiersFromConfig(ctx, cfg, chatModel, logger.Component(log, "wiring"))
	if err != nil {
		return fmt.Errorf("initialise classifiers: %w", err)
	}

	generator, err := ai.NewService(ctx, chatModel, store, classifiers.Text, ai.Config{
		HistoryWindow: cfg.Conversation.HistoryWindow,
		Timeout:       cfg.AI.GenerationTimeout,
	}, log)
	if err != nil {
		return fmt.Errorf("initialise response generator: %w", err)
	}

	pipeline := orchestrator.NewService(classifiers, generator, log)
	router := handler.NewRouter(pipeline, store, handler.Options{
		UploadMaxBytes:  cfg.Server.UploadMaxBytes,
		StoreBackend:    cfg.Store.Backend,
		GenerationReady: generator.Available(),
	}, log)

	return startServer(ctx, cfg.Server, router, log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log logrus.FieldLogger) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.WithField("addr", addr).Info("EmoPulse backend listening")
	if err := runServer(ctx, srv); err != nil {
		return fmt.Errorf("serve %s: %w", addr, err)
	}
	return nil
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
