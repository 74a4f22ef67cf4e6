// Command procguardd runs the supervisor HTTP daemon: it launches and
// supervises child processes on request, serving their status and logs
// over a diagnostics HTTP surface, grounded on the teacher's
// cmd/zmux-server/main.go.
package main

import (
	"context"
	"crypto/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edirooss/procexec/diagnostics"
	"github.com/edirooss/procexec/diagnostics/middleware"
	"github.com/edirooss/procexec/history"
	"github.com/edirooss/procexec/supervisor"
)

func main() {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	log := zap.Must(logConfig.Build())
	defer log.Sync()
	log = log.Named("main")

	redisAddr := envOr("PROCGUARDD_REDIS_ADDR", "localhost:6379")
	redisClient := history.NewClient(redisAddr, 0, log)
	defer redisClient.Close()
	runRepo := history.NewRunRepository(log, redisClient)

	maxConcurrent := int64(32)
	mgr := supervisor.NewManager(log, maxConcurrent, runRepo)

	sessionSecret := sessionSecretFromEnv(log)

	cfg := diagnostics.Config{
		Dev: os.Getenv("ENV") == "dev",
		Credentials: middleware.Credentials{
			AdminUser:   os.Getenv("PROCGUARDD_ADMIN_USER"),
			AdminPass:   os.Getenv("PROCGUARDD_ADMIN_PASS"),
			BearerToken: os.Getenv("PROCGUARDD_BEARER_TOKEN"),
		},
		SessionRedisAddr:  redisAddr,
		SessionSecret:     sessionSecret,
		MaxConcurrentHTTP: 64,
		History:           runRepo,
	}

	router, err := diagnostics.NewRouter(log, mgr, cfg)
	if err != nil {
		log.Fatal("diagnostics router setup failed", zap.Error(err))
	}

	addr := envOr("PROCGUARDD_ADDR", "127.0.0.1:8080")
	httpServer := &http.Server{
		Addr:           addr,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 15,
		ErrorLog:       zap.NewStdLog(log.Named("http").WithOptions(zap.AddCallerSkip(1))),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("running HTTP server", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown failed", zap.Error(err))
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStop()
	if err := mgr.StopAll(stopCtx); err != nil {
		log.Warn("stopping units at shutdown", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// sessionSecretFromEnv reads a hex/base64-agnostic raw secret from the
// environment, or mints an ephemeral one; an ephemeral secret means
// sessions (and their CSRF tokens) don't survive a restart, which is
// acceptable for a daemon whose diagnostics UI re-authenticates anyway.
func sessionSecretFromEnv(log *zap.Logger) []byte {
	if v := os.Getenv("PROCGUARDD_SESSION_SECRET"); v != "" {
		return []byte(v)
	}
	log.Warn("PROCGUARDD_SESSION_SECRET not set, generating an ephemeral session secret")
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		log.Fatal("generate session secret", zap.Error(err))
	}
	return secret
}
