package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/carsonmellblom/IncidentCommander/internal/agent"
	"github.com/carsonmellblom/IncidentCommander/internal/auth"
	"github.com/carsonmellblom/IncidentCommander/internal/config"
	"github.com/carsonmellblom/IncidentCommander/internal/httpapi"
	"github.com/carsonmellblom/IncidentCommander/internal/hub"
	"github.com/carsonmellblom/IncidentCommander/internal/ids"
	"github.com/carsonmellblom/IncidentCommander/internal/incident"
	"github.com/carsonmellblom/IncidentCommander/internal/migrate"
	"github.com/carsonmellblom/IncidentCommander/internal/obs"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	// Postgres when a DSN is configured, otherwise in-memory demo mode.
	var (
		db            *sql.DB
		authStore     auth.Store
		incidentStore incident.Store
	)
	if cfg.DatabaseDSN != "" {
		db, err = sql.Open("pgx", cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)

		if err := migrate.Up(ctx, db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		authStore = auth.NewPGStore(db)
		incidentStore = incident.NewPGStore(db)
	} else {
		log.Printf("IC_PG_DSN not set, running with in-memory state")
		authStore = auth.NewMemoryStore()
		incidentStore = incident.NewMemoryStore()
	}

	authSvc, err := auth.NewService(authStore,
		auth.WithSigningSecret(cfg.SigningSecret),
		auth.WithIssuer(cfg.Issuer),
		auth.WithAudience(cfg.Audience),
		auth.WithAccessTTL(cfg.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL),
	)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := seedAdmin(ctx, authStore, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatalf("seed admin: %v", err)
		}
	}

	api := httpapi.New(
		authSvc,
		incident.NewService(incidentStore),
		hub.New(),
		agent.NewDemo(),
		httpapi.ReadyProbe{DB: db},
		version,
		httpapi.WithCORSOrigin(cfg.CORSOrigin),
		httpapi.WithCookieSecure(cfg.CookieSecure),
		httpapi.WithChaosEnabled(cfg.ChaosEnabled),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// No WriteTimeout: the SSE hubs hold response streams open.
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("Starting incident-commander-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}

// seedAdmin provisions the configured admin account once. An existing user
// with the same email is left untouched.
func seedAdmin(ctx context.Context, store auth.Store, email, password string) error {
	_, err := store.Users(ctx).FindByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return store.Users(ctx).Create(ctx, &auth.User{
		ID:           ids.New(),
		Email:        email,
		Username:     "admin",
		PasswordHash: hash,
		Roles:        []string{httpapi.RoleAdmin},
		CreatedAt:    time.Now().UTC(),
	})
}
