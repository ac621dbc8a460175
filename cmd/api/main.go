package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"shelterhub.org/internal/httpapi"
	"shelterhub.org/internal/obs"
	"shelterhub.org/internal/shelter"
	"shelterhub.org/internal/store/pg"
	"shelterhub.org/internal/stream"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("SHELTERHUB_COMMIT"))

	// With a DSN the service runs on Postgres; without one it falls back to
	// the in-memory store for local development.
	var (
		db    *sql.DB
		store shelter.Store
	)
	if dsn := os.Getenv("SHELTERHUB_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = pg.New(db)
	} else {
		log.Println("SHELTERHUB_PG_DSN not set, using in-memory store")
		store = shelter.NewInMemory()
	}

	svc := shelter.NewService(store)
	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc, stream.New())

	addr := os.Getenv("SHELTERHUB_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting shelterhub-api %s on %s", version, srv.Addr)

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
