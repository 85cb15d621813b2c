package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func cleanupSessions(ctx context.Context, sessions *SessionStore) {
	n, err := sessions.DeleteExpired(ctx)
	if err != nil {
		slog.Error("cleaning up expired sessions", slog.Any("error", err))
		return
	}
	sessionsCleanedTotal.Add(float64(n))
	if n > 0 {
		slog.Info("removed expired sessions", slog.Int64("count", n))
	}
}

func main() {
	godotenv.Load()

	cfg, err := loadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	slog.SetDefault(newLogger(cfg.LogLevel, cfg.LogFormat))
	if cfg.generatedSecret {
		slog.Warn("SESSION_SECRET not set, sessions will not survive a restart")
	}

	db, err := openDB(cfg.Database)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err = initDB(db, cfg.Database.Driver); err != nil {
		log.Fatalf("initializing database: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := NewStore(db, cfg.Database.Driver)

	if cfg.Database.Seed {
		if err = seedDB(ctx, store); err != nil {
			log.Fatalf("seeding database: %v", err)
		}
	}

	if err = seedSettings(ctx, store, cfg.SiteTitle); err != nil {
		log.Fatalf("seeding settings: %v", err)
	}

	if err = os.MkdirAll(filepath.Join(cfg.PublicDir, "uploads"), 0o755); err != nil {
		log.Fatalf("creating upload directory: %v", err)
	}

	sessions := NewSessionStore(store)
	cleanupSessions(ctx, sessions)

	scheduler := cron.New()
	if _, err = scheduler.AddFunc("@hourly", func() { cleanupSessions(ctx, sessions) }); err != nil {
		log.Fatalf("scheduling session cleanup: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	blog := NewBlog(cfg, store, sessions)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           blog.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server starting", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutting down server", slog.Any("error", err))
	}
	slog.Info("server stopped")
}
