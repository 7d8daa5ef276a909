package models

import (
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"
)

type User struct {
    ID        string `gorm:"type:uuid;primaryKey"`
    Username  string `gorm:"uniqueIndex"`
    Name      string
    Email     string `gorm:"index"`
    Password  string
    Role      string `gorm:"index"`
    Active    bool
    CreatedAt time.Time
    UpdatedAt time.Time

    StudentProfile *StudentProfile
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
    if u.ID == "" {
        u.ID = uuid.NewString()
    }
    return nil
}

// StudentProfile exists only for ESTUDIANTE users; Username doubles as the
// student code for login.
type StudentProfile struct {
    ID          string `gorm:"type:uuid;primaryKey"`
    UserID      string `gorm:"type:uuid;uniqueIndex"`
    StudentCode string `gorm:"uniqueIndex"`
    DNI         string `gorm:"uniqueIndex"`
    FullName    string
    PhoneNumber string
    CareerID    string `gorm:"type:uuid;index"`
    Career      *Career
    CreatedAt   time.Time
    UpdatedAt   time.Time
}

func (p *StudentProfile) BeforeCreate(tx *gorm.DB) (err error) {
    if p.ID == "" {
        p.ID = uuid.NewString()
    }
    return nil
}
