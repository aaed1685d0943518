package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"civreg.org/internal/auth"
	"civreg.org/internal/config"
	"civreg.org/internal/directory"
	"civreg.org/internal/httpapi"
	"civreg.org/internal/obs"
)

var version = "0.1.0"

func main() {
	configPath := flag.String("config", os.Getenv("CIVREG_CONFIG"), "Path to YAML config")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("CIVREG_COMMIT"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var (
		db    *sql.DB
		store directory.Store
	)
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = directory.NewPGStore(db)
	} else {
		// In-memory fallback for local development without Postgres.
		store = directory.NewMemoryStore()
		log.Println("CIVREG_PG_DSN not set, using in-memory store")
	}

	svc, err := directory.NewService(store, directory.WithBcryptCost(cfg.BcryptCost))
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}

	issuer, err := auth.NewIssuer(cfg.TokenSecret,
		auth.WithTTL(time.Duration(cfg.TokenTTL)),
		auth.WithIssuer(cfg.Issuer),
	)
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	api := httpapi.New(svc, issuer, httpapi.ReadyProbe{DB: db}, httpapi.Options{
		Version:      version,
		CORSOrigin:   cfg.CORSOrigin,
		RateBurst:    cfg.RateBurst,
		RatePerSec:   cfg.RatePerSec,
		SecureCookie: cfg.SecureCookie,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting civreg-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
