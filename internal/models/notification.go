package models

import (
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"
)

type Notification struct {
    ID        string `gorm:"type:uuid;primaryKey"`
    UserID    string `gorm:"type:uuid;index"`
    Type      string
    Title     string
    Message   string
    Data      []byte // JSON payload
    IsRead    bool   `gorm:"index"`
    CreatedAt time.Time
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
    if n.ID == "" {
        n.ID = uuid.NewString()
    }
    return nil
}
