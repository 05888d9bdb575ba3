package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sales-reconciliation/internal/config"
	"sales-reconciliation/internal/database"
	"sales-reconciliation/internal/handlers"
	"sales-reconciliation/internal/services"
)

func main() {
	migrateCmd := flag.String("migrate", "", "Migration command (up/down/version)")
	steps := flag.Int("steps", 0, "Number of migration steps (0 means all)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	if *migrateCmd != "" {
		handleMigration(cfg, *migrateCmd, *steps)
		return
	}

	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatalf("Error connecting to database: %v", err)
	}
	defer db.Close()

	svc, err := services.New(db, cfg)
	if err != nil {
		log.Fatalf("Error creating services: %v", err)
	}
	router := handlers.SetupRouter(svc)

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("Server is running on %s (%s, %s)", cfg.ServerAddress, cfg.Environment, cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server Shutdown Failed:%+v", err)
	}
	log.Println("Server exited gracefully")
}

func handleMigration(cfg *config.Config, command string, steps int) {
	db, err := database.NewConnection(cfg)
	if err != nil {
		log.Fatalf("Failed to ensure database exists: %v", err)
	}
	db.Close()

	if command == "version" {
		version, dirty, ok, err := database.MigrationVersion(cfg)
		if err != nil {
			log.Fatalf("Failed to get version: %v", err)
		}
		if !ok {
			log.Printf("No migrations have been applied yet")
			return
		}
		fmt.Printf("Current migration version: %d (dirty: %v)\n", version, dirty)
		return
	}

	if err := database.Migrate(cfg, command, steps); err != nil {
		log.Fatal(err)
	}
}
