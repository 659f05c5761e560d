package main

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/csrf"
	"github.com/payback159/contactgate/pkg/config"
	"github.com/payback159/contactgate/pkg/contact"
	"github.com/payback159/contactgate/pkg/handlers"
	"github.com/payback159/contactgate/pkg/logging"
	"github.com/payback159/contactgate/pkg/monitoring"
	"github.com/payback159/contactgate/pkg/ratelimit"
	"github.com/payback159/contactgate/pkg/relay"
	"github.com/payback159/contactgate/pkg/routing"
	"github.com/payback159/contactgate/pkg/security"
	"github.com/payback159/contactgate/pkg/session"
)

func main() {
	cfg, err := config.Load()
	logging.InitLogger(cfg.LogLevel)
	if err != nil {
		logging.LogCritical("Invalid configuration", err)
		os.Exit(1)
	}

	logging.LogInfo("Starting contactgate",
		"env", cfg.Env,
		"port", cfg.Port,
		"relay_endpoint", cfg.RelayEndpoint,
		"rate_limit_window", cfg.Security.RateLimitWindow.String(),
		"rate_limit_max", cfg.Security.MaxSubmissionsPerWindow,
		"sanitization_level", string(cfg.Security.SanitizationLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := monitoring.New(cfg.Security, logging.Logger())
	relayClient := relay.New(cfg)
	honeypot := security.NewHoneypot(cfg.Security)
	tokens := security.NewTokenGenerator(cfg.Security)

	newForm := func(b *session.Bucket) *contact.Form {
		return contact.New(contact.Deps{
			Config:   cfg.Security,
			Limiter:  ratelimit.New(cfg.Security, b, monitor),
			Monitor:  monitor,
			Sender:   relayClient,
			Honeypot: honeypot,
			Tokens:   tokens,
		})
	}

	store := session.NewStore(ctx, session.DefaultTTL)
	sessions, err := session.NewManager([]byte(cfg.SessionSecret), cfg.IsProduction(), store, newForm)
	if err != nil {
		logging.LogCritical("Session manager setup failed", err)
		os.Exit(1)
	}

	templates, err := template.ParseGlob(filepath.Join(cfg.TemplatesDir, "*.html"))
	if err != nil {
		logging.LogCritical("Template loading failed", err, "templates_dir", cfg.TemplatesDir)
		os.Exit(1)
	}

	h := handlers.NewHandler(templates, sessions, routing.New(cfg.Security, monitor), monitor, cfg)
	edge := security.NewEdgeLimiter(ctx, cfg.EdgeRatePerMinute, cfg.EdgeRateBurst)

	var handler http.Handler = h.Routes(edge)
	if cfg.IsProduction() {
		protect := csrf.Protect([]byte(cfg.CSRFKey),
			csrf.Secure(true),
			csrf.Path("/"),
			csrf.ErrorHandler(http.HandlerFunc(h.CSRFFailure)))
		handler = protect(handler)
		logging.LogInfo("CSRF protection enabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go reportStats(ctx)

	go func() {
		logging.LogInfo("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.LogCritical("Server failed", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logging.LogInfo("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.LogError("Graceful shutdown failed", err)
	}
}

// reportStats logs runtime statistics until ctx is done
func reportStats(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	logging.LogSystemStats()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logging.LogSystemStats()
		}
	}
}
