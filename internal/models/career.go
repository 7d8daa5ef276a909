package models

import (
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"
)

type Career struct {
    ID        string `gorm:"type:uuid;primaryKey"`
    Code      string `gorm:"uniqueIndex"`
    Name      string
    CreatedAt time.Time
    UpdatedAt time.Time
}

func (c *Career) BeforeCreate(tx *gorm.DB) (err error) {
    if c.ID == "" {
        c.ID = uuid.NewString()
    }
    return nil
}
