package attendance

import (
    "encoding/json"
    "errors"
    "time"

    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/models"
    "github.com/ucampus/attendance_backend/internal/utils"
)

const (
    minRotationMinutes     = 1
    maxRotationMinutes     = 30
    defaultRotationMinutes = 3
)

// IsCurrentlyActive is the single predicate for "can this session accept
// scans right now". A session past its end time counts as inactive even if
// the persisted flag has not been flipped yet; there is no background
// sweeper, staleness is resolved at read time.
func IsCurrentlyActive(s *models.Session, now time.Time) bool {
    return s.IsActive && !now.After(s.EndTime)
}

type CreateSessionInput struct {
    EnvironmentID     string
    Name              string
    Type              string
    HostID            *string
    HostName          string
    AllowExternals    bool
    StartTime         time.Time
    EndTime           time.Time
    QRRotationMinutes int
}

// CreateSession books an environment for a time window. The overlap check
// runs inside the same transaction as the insert so two concurrent
// bookings for the same slot cannot both pass admission control.
func (s *Service) CreateSession(in CreateSessionInput) (*models.Session, error) {
    if in.Name == "" {
        return nil, validationErrf("session name is required")
    }
    if !models.IsValidSessionType(in.Type) {
        return nil, validationErrf("invalid session type")
    }
    if !in.StartTime.Before(in.EndTime) {
        return nil, validationErrf("start time must be before end time")
    }
    if in.HostID == nil && !in.AllowExternals {
        return nil, validationErrf("host is required unless externals are allowed")
    }
    if in.QRRotationMinutes == 0 {
        in.QRRotationMinutes = s.DefaultRotationMinutes
    }
    if in.QRRotationMinutes == 0 {
        in.QRRotationMinutes = defaultRotationMinutes
    }
    if in.QRRotationMinutes < minRotationMinutes || in.QRRotationMinutes > maxRotationMinutes {
        return nil, validationErrf("qr rotation interval must be between 1 and 30 minutes")
    }

    now := s.clock()
    initialCode, err := utils.GenerateCode(utils.QRTokenLength)
    if err != nil {
        return nil, err
    }

    session := models.Session{
        EnvironmentID:     in.EnvironmentID,
        Name:              in.Name,
        Type:              in.Type,
        HostID:            in.HostID,
        HostName:          in.HostName,
        AllowExternals:    in.AllowExternals,
        StartTime:         in.StartTime.UTC(),
        EndTime:           in.EndTime.UTC(),
        QRRotationMinutes: in.QRRotationMinutes,
        CurrentQRCode:     &initialCode,
        LastQRRotation:    &now,
        IsActive:          true,
    }

    err = s.DB.Transaction(func(tx *gorm.DB) error {
        var env models.Environment
        if err := tx.Where("id = ?", in.EnvironmentID).First(&env).Error; err != nil {
            if errors.Is(err, gorm.ErrRecordNotFound) {
                return ErrNotFound
            }
            return err
        }
        if !env.Active {
            return validationErrf("environment is not active")
        }

        // Half-open interval intersection: existing.start < new.end AND
        // new.start < existing.end.
        var conflicts int64
        if err := tx.Model(&models.Session{}).
            Where("environment_id = ? AND is_active = ?", in.EnvironmentID, true).
            Where("start_time < ? AND end_time > ?", session.EndTime, session.StartTime).
            Count(&conflicts).Error; err != nil {
            return err
        }
        if conflicts > 0 {
            return ErrConflict
        }

        if err := tx.Create(&session).Error; err != nil {
            return err
        }

        // First rotation epoch covers the whole session until rotation is
        // first requested.
        qr := models.QRCode{
            SessionID:  session.ID,
            Code:       initialCode,
            ValidFrom:  now,
            ValidUntil: session.EndTime,
        }
        if err := tx.Create(&qr).Error; err != nil {
            return err
        }

        return s.writeAudit(tx, in.HostID, "CREATE_SESSION", "SESSION", session.ID, map[string]interface{}{
            "sessionName": in.Name,
            "environment": env.Name,
            "sessionType": in.Type,
        })
    })
    if err != nil {
        return nil, err
    }
    return &session, nil
}

type UpdateSessionInput struct {
    Name              *string
    Type              *string
    StartTime         *time.Time
    EndTime           *time.Time
    QRRotationMinutes *int
    AllowExternals    *bool
}

func (s *Service) UpdateSession(sessionID string, actor models.User, in UpdateSessionInput) (*models.Session, error) {
    var session models.Session
    if err := s.DB.Where("id = ?", sessionID).First(&session).Error; err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return nil, ErrNotFound
        }
        return nil, err
    }
    if !canManageSession(&session, actor) {
        return nil, ErrForbidden
    }

    if in.Name != nil {
        session.Name = *in.Name
    }
    if in.Type != nil {
        if !models.IsValidSessionType(*in.Type) {
            return nil, validationErrf("invalid session type")
        }
        session.Type = *in.Type
    }
    if in.StartTime != nil {
        session.StartTime = in.StartTime.UTC()
    }
    if in.EndTime != nil {
        session.EndTime = in.EndTime.UTC()
    }
    if !session.StartTime.Before(session.EndTime) {
        return nil, validationErrf("start time must be before end time")
    }
    if in.QRRotationMinutes != nil {
        if *in.QRRotationMinutes < minRotationMinutes || *in.QRRotationMinutes > maxRotationMinutes {
            return nil, validationErrf("qr rotation interval must be between 1 and 30 minutes")
        }
        session.QRRotationMinutes = *in.QRRotationMinutes
    }
    if in.AllowExternals != nil {
        session.AllowExternals = *in.AllowExternals
    }

    err := s.DB.Transaction(func(tx *gorm.DB) error {
        if in.StartTime != nil || in.EndTime != nil {
            var conflicts int64
            if err := tx.Model(&models.Session{}).
                Where("id <> ? AND environment_id = ? AND is_active = ?", session.ID, session.EnvironmentID, true).
                Where("start_time < ? AND end_time > ?", session.EndTime, session.StartTime).
                Count(&conflicts).Error; err != nil {
                return err
            }
            if conflicts > 0 {
                return ErrConflict
            }
        }
        if err := tx.Save(&session).Error; err != nil {
            return err
        }
        return s.writeAudit(tx, &actor.ID, "UPDATE_SESSION", "SESSION", session.ID, map[string]interface{}{
            "sessionName": session.Name,
        })
    })
    if err != nil {
        return nil, err
    }
    return &session, nil
}

// CloseSession deactivates a session and checks out every attendee still
// marked present, stamping closure time. Only the host or an admin may
// close a session.
func (s *Service) CloseSession(sessionID string, actor models.User) (*models.Session, error) {
    var session models.Session
    if err := s.DB.Where("id = ?", sessionID).First(&session).Error; err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return nil, ErrNotFound
        }
        return nil, err
    }
    if !canManageSession(&session, actor) {
        return nil, ErrForbidden
    }
    // Closure is terminal: a closed session keeps its closure timestamp
    // and checkout stamps no matter how often close is retried.
    if !session.IsActive {
        return nil, ErrSessionInactive
    }

    now := s.clock()
    err := s.DB.Transaction(func(tx *gorm.DB) error {
        originalEnd := session.EndTime
        session.IsActive = false
        session.EndTime = now
        if err := tx.Save(&session).Error; err != nil {
            return err
        }
        if err := tx.Model(&models.Attendance{}).
            Where("session_id = ? AND check_out_time IS NULL", session.ID).
            Update("check_out_time", now).Error; err != nil {
            return err
        }
        return s.writeAudit(tx, &actor.ID, "CLOSE_SESSION", "SESSION", session.ID, map[string]interface{}{
            "sessionName":     session.Name,
            "originalEndTime": originalEnd,
            "closedAt":        now,
        })
    })
    if err != nil {
        return nil, err
    }
    return &session, nil
}

func canManageSession(session *models.Session, actor models.User) bool {
    if actor.Role == models.RoleAdmin {
        return true
    }
    return session.HostID != nil && *session.HostID == actor.ID
}

func (s *Service) writeAudit(tx *gorm.DB, userID *string, action, entityType, entityID string, metadata map[string]interface{}) error {
    payload, err := json.Marshal(metadata)
    if err != nil {
        return err
    }
    return tx.Create(&models.AuditLog{
        UserID:     userID,
        Action:     action,
        EntityType: entityType,
        EntityID:   entityID,
        Metadata:   payload,
    }).Error
}
