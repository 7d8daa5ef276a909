package database

import (
    "fmt"

    "gorm.io/driver/postgres"
    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/config"
    "github.com/ucampus/attendance_backend/internal/models"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
    dsn := fmt.Sprintf(
        "host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
        cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode,
    )
    return gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
}

func Migrate(db *gorm.DB) error {
    return db.AutoMigrate(
        &models.User{},
        &models.StudentProfile{},
        &models.Career{},
        &models.Environment{},
        &models.UserEnvironment{},
        &models.Session{},
        &models.QRCode{},
        &models.Attendance{},
        &models.ExternalPerson{},
        &models.Notification{},
        &models.AuditLog{},
        &models.RefreshToken{},
    )
}
