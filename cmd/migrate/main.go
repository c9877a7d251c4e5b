// Command migrate applies the coordination service's schema migrations.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/axiom-software-co/coordination/infrastructure/migrations"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	go handleShutdownSignals(cancel)

	migrator, err := migrations.NewMigrator(getEnvironment())
	if err != nil {
		log.Fatalf("failed to create migrator: %v", err)
	}

	if err := migrator.RunMigrations(ctx); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		log.Printf("could not determine migration version: %v", err)
		return
	}
	log.Printf("database at migration version %d (dirty=%v)", version, dirty)
}

func handleShutdownSignals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("received shutdown signal: %v", sig)
	cancel()
}

func getEnvironment() string {
	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		return "development"
	}
	return env
}
