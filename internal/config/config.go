package config

import (
    "os"
    "strconv"
    "time"
)

type Config struct {
    Port       string
    DBHost     string
    DBPort     string
    DBUser     string
    DBPassword string
    DBName     string
    DBSSLMode  string

    JWTSecret        string
    RefreshJWTSecret string
    AccessTokenTTL   time.Duration
    RefreshTokenTTL  time.Duration

    AdminUsername string
    AdminPassword string
    AdminFullName string
    AdminEmail    string

    // QR rotation default; per-session values override within [1,30] minutes.
    DefaultQRRotationMinutes int

    // Anomaly detection: more than AnomalyIPThreshold check-ins from one
    // address within AnomalyWindow marks the next record suspicious.
    AnomalyWindow      time.Duration
    AnomalyIPThreshold int
}

func Load() *Config {
    return &Config{
        Port:       getenv("PORT", "8080"),
        DBHost:     getenv("DB_HOST", "localhost"),
        DBPort:     getenv("DB_PORT", "5432"),
        DBUser:     getenv("DB_USER", "postgres"),
        DBPassword: getenv("DB_PASSWORD", "postgres"),
        DBName:     getenv("DB_NAME", "attendance_db"),
        DBSSLMode:  getenv("DB_SSLMODE", "disable"),

        JWTSecret:        getenv("JWT_SECRET", "supersecret_change_me"),
        RefreshJWTSecret: getenv("REFRESH_JWT_SECRET", getenv("JWT_SECRET", "supersecret_change_me")),
        AccessTokenTTL:   time.Duration(getenvInt("ACCESS_TOKEN_TTL_MINUTES", 15)) * time.Minute,
        RefreshTokenTTL:  time.Duration(getenvInt("REFRESH_TOKEN_TTL_DAYS", 30)) * 24 * time.Hour,

        AdminUsername: getenv("ADMIN_USERNAME", "admin"),
        AdminPassword: getenv("ADMIN_PASSWORD", "admin123"),
        AdminFullName: getenv("ADMIN_FULL_NAME", "Administrator"),
        AdminEmail:    getenv("ADMIN_EMAIL", "admin@example.com"),

        DefaultQRRotationMinutes: getenvInt("QR_ROTATION_MINUTES", 3),

        AnomalyWindow:      time.Duration(getenvInt("ANOMALY_WINDOW_SECONDS", 60)) * time.Second,
        AnomalyIPThreshold: getenvInt("ANOMALY_IP_THRESHOLD", 2),
    }
}

func getenv(key, fallback string) string {
    v := os.Getenv(key)
    if v == "" {
        return fallback
    }
    return v
}

func getenvInt(key string, fallback int) int {
    v := os.Getenv(key)
    if v == "" {
        return fallback
    }
    n, err := strconv.Atoi(v)
    if err != nil {
        return fallback
    }
    return n
}
