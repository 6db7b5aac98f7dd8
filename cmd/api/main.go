package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"acore/adapters/api"
	"acore/internal/config"
	"acore/internal/container"
)

func main() {
	cfg, err := config.Load(os.Getenv("ACORE_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.Ledger.DSN == "" {
		log.Fatal("ACORE_LEDGER_DSN (or DATABASE_URL) must point at a results ledger")
	}

	c, err := container.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize container: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.InitLedger(ctx); err != nil {
		log.Fatalf("failed to open ledger: %v", err)
	}
	defer c.Shutdown(context.Background())

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewServer(c.Ledger, c.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	c.Logger.Info("serving results ledger on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
}
