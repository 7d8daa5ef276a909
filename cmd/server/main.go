package main

import (
    "log"
    "os"

    "github.com/joho/godotenv"

    "github.com/gin-gonic/gin"

    "github.com/ucampus/attendance_backend/internal/attendance"
    "github.com/ucampus/attendance_backend/internal/config"
    "github.com/ucampus/attendance_backend/internal/database"
    "github.com/ucampus/attendance_backend/internal/routes"
    "github.com/ucampus/attendance_backend/internal/ws"
)

func main() {
    // Load .env (non-fatal if missing in production)
    _ = godotenv.Load()

    cfg := config.Load()

    db, err := database.Connect(cfg)
    if err != nil {
        log.Fatalf("database connection failed: %v", err)
    }

    if err := database.Migrate(db); err != nil {
        log.Fatalf("database migration failed: %v", err)
    }

    if err := database.SeedAdmin(db, cfg); err != nil {
        log.Fatalf("admin seed failed: %v", err)
    }

    if err := database.SeedCareers(db); err != nil {
        log.Fatalf("career seed failed: %v", err)
    }

    hub := ws.NewFeedHub()
    go hub.Run()

    svc := attendance.NewService(db, attendance.AnomalyConfig{
        Window:      cfg.AnomalyWindow,
        IPThreshold: cfg.AnomalyIPThreshold,
    })
    svc.DefaultRotationMinutes = cfg.DefaultQRRotationMinutes
    svc.Feed = hub

    r := gin.Default()
    routes.Register(r, db, cfg, svc, hub)

    port := cfg.Port
    if port == "" {
        port = "8080"
    }

    if err := r.Run(":" + port); err != nil {
        log.Println("server exited with error:", err)
        os.Exit(1)
    }
}
