// Package main is the entry point for the code execution service.
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

	"github.com/codedeck/runner/internal/config"
	"github.com/codedeck/runner/internal/database"
	"github.com/codedeck/runner/internal/language"
	"github.com/codedeck/runner/internal/router"
	"github.com/codedeck/runner/internal/sandbox"
	"github.com/codedeck/runner/internal/services"
	"github.com/codedeck/runner/internal/version"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Runner %s\n", version.Version)
		fmt.Printf("Build Time: %s\n", version.BuildTime)
		fmt.Printf("Git Commit: %s\n", version.GitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Printf("Warning: Could not load config from %s: %v", *configPath, err)
		log.Println("Using default configuration...")
		cfg = config.Default()
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	registry := language.NewRegistry(&cfg.Languages)
	processBackend := sandbox.NewProcessBackend()
	dockerBackend := sandbox.NewDockerBackend(&cfg.Sandbox)

	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 3*time.Second)
	if dockerBackend.Available(probeCtx) {
		log.Println("[Main] Container runtime reachable, C execution enabled")
	} else {
		log.Println("[Main] Container runtime unreachable, C submissions will fail until it is available")
	}
	cancelProbe()

	sessions := services.NewSessionManager(10 * time.Minute)
	history := services.NewHistoryService(db, cfg.Execution.HistoryLimit)
	files := services.NewProjectFileService(db)
	workspace := services.NewWorkspaceService(cfg.Execution.WorkspaceDir)
	assist := services.NewAssistService(&cfg.Assist)

	engine := services.NewEngine(cfg, registry, processBackend, dockerBackend, sessions, history, files, workspace)

	r := router.New(cfg, engine, sessions, history, assist)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Printf("Runner %s starting on %s", version.Version, addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[Main] Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[Main] Server shutdown error: %v", err)
	}

	// Kill every parked process before the workspace dirs go away.
	sessions.Shutdown()

	log.Println("[Main] Stopped")
}
