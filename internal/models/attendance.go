package models

import (
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"
)

// Attendance is one check-in/out record per (session, attendee). Exactly one
// of UserID / ExternalPersonID is set. The composite unique indexes enforce
// at most one row per attendee per session even under concurrent scans
// (NULLs are distinct, so each index only binds its own attendee kind).
type Attendance struct {
    ID               string  `gorm:"type:uuid;primaryKey"`
    SessionID        string  `gorm:"type:uuid;index;uniqueIndex:uniq_session_user;uniqueIndex:uniq_session_external"`
    Session          *Session
    UserID           *string `gorm:"type:uuid;uniqueIndex:uniq_session_user"`
    User             *User
    ExternalPersonID *string `gorm:"type:uuid;uniqueIndex:uniq_session_external"`
    ExternalPerson   *ExternalPerson
    CheckInTime      time.Time `gorm:"index"`
    CheckOutTime     *time.Time
    IsSuspicious     bool
    SuspiciousReason *string
    IPAddress        string `gorm:"index"`
    DeviceInfo       string
    CreatedAt        time.Time
    UpdatedAt        time.Time
}

func (a *Attendance) BeforeCreate(tx *gorm.DB) (err error) {
    if a.ID == "" {
        a.ID = uuid.NewString()
    }
    return nil
}

// ExternalPerson is a non-enrolled attendee, permitted only in sessions
// that allow externals.
type ExternalPerson struct {
    ID          string `gorm:"type:uuid;primaryKey"`
    DNI         string `gorm:"uniqueIndex"`
    FullName    string
    Institution string
    Email       string
    CreatedAt   time.Time
    UpdatedAt   time.Time
}

func (e *ExternalPerson) BeforeCreate(tx *gorm.DB) (err error) {
    if e.ID == "" {
        e.ID = uuid.NewString()
    }
    return nil
}
