package main

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"whisperd/internal/asr"
	"whisperd/internal/broadcast"
	"whisperd/internal/config"
	"whisperd/internal/executor"
	"whisperd/internal/handlers"
	"whisperd/internal/ingestion"
	"whisperd/internal/registry"
	"whisperd/internal/storage"
	"whisperd/internal/version"
)

func main() {
	// Load .env if present
	_ = godotenv.Load()

	cfg := config.Load()

	// Job history database (best-effort: the server runs without it)
	var history *storage.JobRepository
	db, err := storage.Open(filepath.Join(cfg.DataDir, "whisperd.db"))
	if err != nil {
		log.Printf("job history disabled: %v", err)
	} else {
		defer db.Close()
		history = storage.NewJobRepository(db)
	}

	// Process-scoped services, empty at startup
	reg := registry.New()
	hub := broadcast.NewHub()
	engines := asr.NewCache(asr.NewWhisperLoader(cfg.ModelsDir, cfg.ASRThreads))

	exec := executor.New(reg, hub, engines, history, cfg.QueueCapacity)
	exec.Start()
	defer exec.Stop()

	ingester := ingestion.NewIngester(exec, reg, history, cfg.DataDir)

	defaults := ingestion.Request{
		Config:   cfg.DefaultConfig(),
		Language: cfg.DefaultLanguage,
	}
	jobHandler := handlers.NewJobHandler(ingester, reg, history, defaults)
	streamHandler := handlers.NewStreamHandler(hub)

	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"version": version.Version,
		})
	})

	e.POST("/api/jobs", jobHandler.Submit)
	e.POST("/api/jobs/url", jobHandler.SubmitURL)
	e.GET("/api/jobs", jobHandler.List)
	e.GET("/api/jobs/stats", jobHandler.Stats)
	e.GET("/api/jobs/:id", jobHandler.Status)
	e.GET("/api/jobs/:id/result", jobHandler.Result)
	e.GET("/api/ladder", jobHandler.Ladder)
	e.GET("/ws/jobs/:id", streamHandler.Progress)

	log.Printf("Starting whisperd v%s on port %s", version.Version, cfg.Port)
	if err := e.Start(fmt.Sprintf(":%s", cfg.Port)); err != nil {
		log.Fatal(err)
	}
}
