package models

import (
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"
)

// QRCode is one immutable rotation epoch of a session's code. Rows are
// never deleted; only ScanCount changes after creation.
type QRCode struct {
    ID         string `gorm:"type:uuid;primaryKey"`
    SessionID  string `gorm:"type:uuid;index"`
    Session    *Session
    Code       string `gorm:"uniqueIndex"`
    ValidFrom  time.Time
    ValidUntil time.Time
    ScanCount  int
    CreatedAt  time.Time
}

func (q *QRCode) BeforeCreate(tx *gorm.DB) (err error) {
    if q.ID == "" {
        q.ID = uuid.NewString()
    }
    return nil
}
