// Command voiceflowd runs the voice-to-workflow synthesis service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/synclabs/voiceflow/config"
	"github.com/synclabs/voiceflow/convai"
	"github.com/synclabs/voiceflow/logger"
	"github.com/synclabs/voiceflow/pipeline"
	"github.com/synclabs/voiceflow/resultstore"
	"github.com/synclabs/voiceflow/server"
	"github.com/synclabs/voiceflow/synth"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.AudioAPIKey == "" {
		logger.Warn("ELEVENLABS_API_KEY is not set, audio processing will fail")
	}
	if cfg.SynthAPIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set, workflow generation will use the fallback")
	}

	store, cleanup := newResultStore(cfg)
	defer cleanup()

	audioClient := convai.NewClient(cfg.AudioAPIKey)
	orchestrator := convai.NewOrchestrator(audioClient,
		convai.WithMaxAttempts(cfg.MaxAttempts),
		convai.WithDefaultAgentID(cfg.AgentID),
		convai.WithCallTimeout(cfg.CallTimeout),
	)
	synthesizer := synth.NewSynthesizer(cfg.SynthAPIKey, synth.WithModel(cfg.SynthModel))
	controller := pipeline.NewController(orchestrator, synthesizer, store,
		pipeline.WithPartialAfter(cfg.PartialAfter),
		pipeline.WithHardDeadline(cfg.HardDeadline),
	)

	srv := server.New(cfg, controller, store)

	logger.Info("starting voiceflow server",
		"addr", cfg.Addr,
		"agent_id", cfg.AgentID,
		"environment", cfg.Environment)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// newResultStore picks Redis when configured, an in-memory store otherwise.
func newResultStore(cfg *config.Config) (resultstore.Store, func()) {
	if cfg.RedisAddr == "" {
		logger.Debug("using in-memory result store")
		return resultstore.NewMemoryStore(resultstore.WithMemoryTTL(cfg.ResultTTL)), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	logger.Info("using redis result store", "addr", cfg.RedisAddr)
	store := resultstore.NewRedisStore(client, resultstore.WithTTL(cfg.ResultTTL))
	return store, func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", "error", err)
		}
	}
}
