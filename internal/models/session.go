package models

import (
    "time"

    "github.com/google/uuid"
    "gorm.io/gorm"
)

const (
    SessionTypeClass      = "CLASS"
    SessionTypeConference = "CONFERENCE"
    SessionTypeTraining   = "TRAINING"
    SessionTypeEvent      = "EVENT"
)

var sessionTypes = map[string]struct{}{
    SessionTypeClass:      {},
    SessionTypeConference: {},
    SessionTypeTraining:   {},
    SessionTypeEvent:      {},
}

func IsValidSessionType(t string) bool {
    _, ok := sessionTypes[t]
    return ok
}

// Session is a scheduled occupation of an Environment during which
// attendance can be recorded. CurrentQRCode holds the only code the
// verification pipeline accepts; prior codes live in QRCode history.
type Session struct {
    ID                string `gorm:"type:uuid;primaryKey"`
    EnvironmentID     string `gorm:"type:uuid;index"`
    Environment       *Environment
    Name              string
    Type              string
    HostID            *string `gorm:"type:uuid;index"`
    HostName          string
    AllowExternals    bool
    StartTime         time.Time `gorm:"index"`
    EndTime           time.Time `gorm:"index"`
    QRRotationMinutes int
    CurrentQRCode     *string
    LastQRRotation    *time.Time
    IsActive          bool `gorm:"index"`
    CreatedAt         time.Time
    UpdatedAt         time.Time
}

func (s *Session) BeforeCreate(tx *gorm.DB) (err error) {
    if s.ID == "" {
        s.ID = uuid.NewString()
    }
    return nil
}
