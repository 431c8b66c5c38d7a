package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/karanmehta/agenda/internal/config"
	"github.com/karanmehta/agenda/internal/database"
	"github.com/karanmehta/agenda/internal/gcal"
	"github.com/karanmehta/agenda/internal/logging"
	"github.com/karanmehta/agenda/internal/oracle"
	"github.com/karanmehta/agenda/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.Load()
	logger := logging.Setup(cfg.Log.Level)

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	calendar := gcal.NewClient(gcal.Config{
		BaseURL:  cfg.Google.BaseURL,
		Timezone: cfg.Google.Timezone,
		Timeout:  cfg.Google.Timeout,
	})
	planner := oracle.NewClient(oracle.Config{
		BaseURL:     cfg.Planner.BaseURL,
		APIKey:      cfg.Planner.APIKey,
		Model:       cfg.Planner.Model,
		Temperature: cfg.Planner.Temperature,
		Timeout:     cfg.Planner.Timeout,
	})

	srv := server.New(db, calendar, planner, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second, // re-plan requests wait on the planning service
		IdleTimeout:  120 * time.Second,
	}

	// Expired rate-limit windows accumulate without periodic cleanup.
	cleanupDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-cleanupDone:
				return
			}
		}
	}()

	go func() {
		fmt.Printf("Agenda running at http://localhost:%s\n", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	close(cleanupDone)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
