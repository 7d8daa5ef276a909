package models

import (
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"
)

// AuditLog rows are append-only; nothing in the backend reads them back
// except the admin database itself.
type AuditLog struct {
    ID         string  `gorm:"type:uuid;primaryKey"`
    UserID     *string `gorm:"type:uuid;index"`
    Action     string  `gorm:"index"`
    EntityType string
    EntityID   string
    Metadata   []byte // JSON payload
    CreatedAt  time.Time
}

func (l *AuditLog) BeforeCreate(tx *gorm.DB) (err error) {
    if l.ID == "" {
        l.ID = uuid.NewString()
    }
    return nil
}
