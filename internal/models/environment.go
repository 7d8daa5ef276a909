package models

import (
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"
)

// Environment is a bookable physical space (lab, classroom, auditorium).
type Environment struct {
    ID        string `gorm:"type:uuid;primaryKey"`
    Name      string `gorm:"uniqueIndex"`
    Type      string
    Location  string
    Capacity  int
    Active    bool
    CreatedAt time.Time
    UpdatedAt time.Time
}

func (e *Environment) BeforeCreate(tx *gorm.DB) (err error) {
    if e.ID == "" {
        e.ID = uuid.NewString()
    }
    return nil
}

// UserEnvironment assigns an operator (JEFE_LAB) to an environment they manage.
type UserEnvironment struct {
    ID            string `gorm:"type:uuid;primaryKey"`
    UserID        string `gorm:"type:uuid;uniqueIndex:uniq_user_environment"`
    EnvironmentID string `gorm:"type:uuid;uniqueIndex:uniq_user_environment"`
    CreatedAt     time.Time
}

func (ue *UserEnvironment) BeforeCreate(tx *gorm.DB) (err error) {
    if ue.ID == "" {
        ue.ID = uuid.NewString()
    }
    return nil
}
