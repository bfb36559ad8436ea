package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	yall "yall.in"
	"yall.in/colour"

	"lockbox.dev/preferences"
	"lockbox.dev/preferences/apiv1"
	"lockbox.dev/preferences/storers/memory"
	"lockbox.dev/preferences/storers/postgres"
	"lockbox.dev/preferences/storers/redis"
	"lockbox.dev/sessions"
)

// newStorer connects to the backend `cfg` selects, returning the Storer and
// a func that releases it.
func newStorer(ctx context.Context, cfg config) (preferences.Storer, func(), error) {
	switch cfg.Backend {
	case backendRedis:
		storer, err := redis.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return storer, func() { _ = storer.Close() }, nil
	case backendPostgres:
		storer, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := storer.Migrate(ctx); err != nil {
			storer.Close()
			return nil, nil, err
		}
		return storer, storer.Close, nil
	}
	storer, err := memory.NewStorer()
	if err != nil {
		return nil, nil, err
	}
	return storer, func() {}, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		yall.New(colour.New(os.Stderr, yall.Severity("ERROR"))).WithError(err).Error("Error loading config")
		os.Exit(1)
	}
	log := yall.New(colour.New(os.Stdout, yall.Severity(strings.ToUpper(cfg.LogLevel))))
	ctx := yall.InContext(context.Background(), log)

	publicKey, err := loadPublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.WithError(err).WithField("path", cfg.JWTPublicKey).Error("Error loading JWT public key")
		os.Exit(1)
	}
	fingerprint, err := publicKeyFingerprint(publicKey)
	if err != nil {
		log.WithError(err).Error("Error fingerprinting JWT public key")
		os.Exit(1)
	}
	log.WithField("fingerprint", fingerprint).Info("Loaded JWT public key")

	storer, closeStorer, err := newStorer(ctx, cfg)
	if err != nil {
		log.WithError(err).WithField("backend", cfg.Backend).Error("Error setting up storer")
		os.Exit(1)
	}
	defer closeStorer()

	api := apiv1.API{
		Preferences: preferences.Dependencies{
			Storer: storer,
		},
		Sessions: sessions.Dependencies{
			JWTPublicKey: publicKey,
			ServiceID:    cfg.ServiceID,
		},
		Log: log,
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.RoutePrefix+"/", api.Server(cfg.RoutePrefix))
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Addr).WithField("backend", cfg.Backend).Info("Serving preferences")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		log.WithError(err).Error("Error serving HTTP")
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down")
	}
}
