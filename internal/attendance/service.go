package attendance

import (
    "time"

    "gorm.io/gorm"
)

// Service owns session lifecycle, QR rotation and the attendance
// verification pipeline. All coordination state lives in the database;
// the service itself keeps no session or code state in memory, so any
// number of instances can run against the same store.
type Service struct {
    DB      *gorm.DB
    Anomaly AnomalyConfig

    // DefaultRotationMinutes applies when a session is created without an
    // explicit interval; zero falls back to the built-in default.
    DefaultRotationMinutes int

    // Now is injectable for tests; nil means wall clock.
    Now func() time.Time

    // Feed receives accepted check-in/out events; nil disables the feed.
    Feed FeedPublisher
}

func NewService(db *gorm.DB, anomaly AnomalyConfig) *Service {
    return &Service{DB: db, Anomaly: anomaly.withDefaults()}
}

func (s *Service) clock() time.Time {
    if s.Now != nil {
        return s.Now().UTC()
    }
    return time.Now().UTC()
}
