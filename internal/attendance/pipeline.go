package attendance

import (
    "errors"
    "time"

    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/models"
)

// Attendee is the tagged identity a scan is recorded against: a registered
// user or an external person, never both.
type Attendee struct {
    userID           string
    externalPersonID string
}

func RegisteredAttendee(userID string) Attendee {
    return Attendee{userID: userID}
}

func ExternalAttendee(externalPersonID string) Attendee {
    return Attendee{externalPersonID: externalPersonID}
}

func (a Attendee) IsExternal() bool { return a.externalPersonID != "" }

func (a Attendee) IsZero() bool { return a.userID == "" && a.externalPersonID == "" }

// Origin carries the request metadata recorded with every attendance row.
type Origin struct {
    IPAddress  string
    DeviceInfo string
}

const (
    MarkCheckIn  = "checkin"
    MarkCheckOut = "checkout"
)

type MarkResult struct {
    Type       string
    Attendance *models.Attendance
    // Warning carries the suspicious reason when the check-in was accepted
    // but flagged; detection never blocks the scan.
    Warning string
}

// MarkAttendance runs the ordered validation chain for a scanned code and,
// on acceptance, records a check-in or toggles a check-out. The chain
// short-circuits: the first failing rule is the rejection reason.
func (s *Service) MarkAttendance(code string, attendee Attendee, origin Origin) (*MarkResult, error) {
    if attendee.IsZero() {
        return nil, validationErrf("attendee identity is required")
    }
    now := s.clock()

    var result *MarkResult
    var sessionID string
    err := s.DB.Transaction(func(tx *gorm.DB) error {
        // 1. Existence: the code must be in rotation history.
        var qr models.QRCode
        if err := tx.Where("code = ?", code).First(&qr).Error; err != nil {
            if errors.Is(err, gorm.ErrRecordNotFound) {
                return ErrInvalidCode
            }
            return err
        }
        var session models.Session
        if err := tx.Where("id = ?", qr.SessionID).First(&session).Error; err != nil {
            return err
        }

        // 2. Session active (persisted flag).
        if !session.IsActive {
            return ErrSessionInactive
        }

        // 3. Currency: rotated-away codes are dead even inside their own
        // validity window; only the newest code is live.
        if session.CurrentQRCode == nil || *session.CurrentQRCode != code {
            return ErrCodeRotated
        }

        // 4. Time window. Also covers sessions past end time whose flag
        // has not been flipped yet (lazy implicit closure).
        if now.Before(session.StartTime) || now.After(session.EndTime) {
            return ErrOutOfWindow
        }

        if attendee.IsExternal() && !session.AllowExternals {
            return ErrExternalsNotAllowed
        }

        // 5. Duplicate check: second scan toggles check-out, third is
        // rejected.
        sessionID = session.ID
        existing, err := findAttendance(tx, session.ID, attendee)
        if err != nil {
            return err
        }
        if existing != nil {
            done, err := s.toggleCheckOut(tx, existing, now)
            if err != nil {
                return err
            }
            result = done
            return nil
        }

        created, err := s.checkIn(tx, &session, &qr, attendee, origin, now)
        if err != nil {
            return err
        }
        result = created
        return nil
    })
    if err != nil {
        if !errors.Is(err, gorm.ErrDuplicatedKey) {
            return nil, err
        }
        // Concurrent scan by the same attendee won the insert. Postgres
        // aborts the whole transaction on the unique violation, so the
        // recovery has to run on a fresh one after the rollback.
        result, err = s.duplicateScanOutcome(sessionID, attendee, now)
        if err != nil {
            return nil, err
        }
    }

    s.publish(s.feedEvent(result, now))
    return result, nil
}

// duplicateScanOutcome answers a scan that lost the insert race as if it
// had seen the winner's row up front: second scan toggles check-out, third
// is rejected as already completed.
func (s *Service) duplicateScanOutcome(sessionID string, attendee Attendee, now time.Time) (*MarkResult, error) {
    var result *MarkResult
    err := s.DB.Transaction(func(tx *gorm.DB) error {
        existing, err := findAttendance(tx, sessionID, attendee)
        if err != nil {
            return err
        }
        if existing == nil {
            return gorm.ErrDuplicatedKey
        }
        done, err := s.toggleCheckOut(tx, existing, now)
        if err != nil {
            return err
        }
        result = done
        return nil
    })
    if err != nil {
        return nil, err
    }
    return result, nil
}

func findAttendance(tx *gorm.DB, sessionID string, attendee Attendee) (*models.Attendance, error) {
    q := tx.Where("session_id = ?", sessionID)
    if attendee.IsExternal() {
        q = q.Where("external_person_id = ?", attendee.externalPersonID)
    } else {
        q = q.Where("user_id = ?", attendee.userID)
    }
    var existing models.Attendance
    if err := q.First(&existing).Error; err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return nil, nil
        }
        return nil, err
    }
    return &existing, nil
}

func (s *Service) toggleCheckOut(tx *gorm.DB, existing *models.Attendance, now time.Time) (*MarkResult, error) {
    if existing.CheckOutTime != nil {
        return nil, ErrAlreadyCompleted
    }
    existing.CheckOutTime = &now
    if err := tx.Save(existing).Error; err != nil {
        return nil, err
    }
    return &MarkResult{Type: MarkCheckOut, Attendance: existing}, nil
}

func (s *Service) checkIn(tx *gorm.DB, session *models.Session, qr *models.QRCode, attendee Attendee, origin Origin, now time.Time) (*MarkResult, error) {
    suspicious, reason, err := s.detectAnomaly(tx, session.ID, origin.IPAddress, now)
    if err != nil {
        return nil, err
    }

    record := models.Attendance{
        SessionID:    session.ID,
        CheckInTime:  now,
        IsSuspicious: suspicious,
        IPAddress:    origin.IPAddress,
        DeviceInfo:   origin.DeviceInfo,
    }
    if attendee.IsExternal() {
        record.ExternalPersonID = &attendee.externalPersonID
    } else {
        record.UserID = &attendee.userID
    }
    if suspicious {
        record.SuspiciousReason = &reason
    }
    if err := tx.Create(&record).Error; err != nil {
        return nil, err
    }

    if err := tx.Model(&models.QRCode{}).Where("id = ?", qr.ID).
        UpdateColumn("scan_count", gorm.Expr("scan_count + 1")).Error; err != nil {
        return nil, err
    }

    if err := s.writeAudit(tx, record.UserID, "ATTENDANCE_MARKED", "ATTENDANCE", record.ID, map[string]interface{}{
        "sessionId":   session.ID,
        "sessionName": session.Name,
        "suspicious":  suspicious,
    }); err != nil {
        return nil, err
    }

    if suspicious {
        if err := s.notifyHost(tx, session, &record, reason); err != nil {
            return nil, err
        }
    }

    res := &MarkResult{Type: MarkCheckIn, Attendance: &record}
    if suspicious {
        res.Warning = reason
    }
    return res, nil
}

func (s *Service) feedEvent(result *MarkResult, now time.Time) FeedEvent {
    evt := FeedEvent{
        Type:         result.Type,
        SessionID:    result.Attendance.SessionID,
        AttendanceID: result.Attendance.ID,
        External:     result.Attendance.ExternalPersonID != nil,
        Timestamp:    now,
        Suspicious:   result.Attendance.IsSuspicious,
    }
    if result.Attendance.SuspiciousReason != nil {
        evt.SuspiciousMsg = *result.Attendance.SuspiciousReason
    }
    if result.Attendance.UserID != nil {
        var user models.User
        if err := s.DB.Select("name").Where("id = ?", *result.Attendance.UserID).First(&user).Error; err == nil {
            evt.AttendeeName = user.Name
        }
    } else if result.Attendance.ExternalPersonID != nil {
        var ext models.ExternalPerson
        if err := s.DB.Select("full_name").Where("id = ?", *result.Attendance.ExternalPersonID).First(&ext).Error; err == nil {
            evt.AttendeeName = ext.FullName
        }
    }
    return evt
}

// VerifyChecks breaks the read-only verification down per rule so clients
// can show what exactly failed.
type VerifyChecks struct {
    IsActive    bool `json:"isActive"`
    IsCurrentQR bool `json:"isCurrentQR"`
    IsInTime    bool `json:"isInTime"`
    IsQRValid   bool `json:"isQRValid"`
}

type VerifyResult struct {
    Valid   bool
    Reason  string
    Session *models.Session
    Checks  VerifyChecks
}

// VerifyCode is the side-effect-free preflight for a scan. It never
// mutates anything; a passing verify does not reserve anything either.
func (s *Service) VerifyCode(code string) (*VerifyResult, error) {
    var qr models.QRCode
    if err := s.DB.Where("code = ?", code).First(&qr).Error; err != nil {
        if errors.Is(err, gorm.ErrRecordNotFound) {
            return nil, ErrInvalidCode
        }
        return nil, err
    }
    var session models.Session
    if err := s.DB.Where("id = ?", qr.SessionID).First(&session).Error; err != nil {
        return nil, err
    }

    now := s.clock()
    checks := VerifyChecks{
        IsActive:    session.IsActive,
        IsCurrentQR: session.CurrentQRCode != nil && *session.CurrentQRCode == code,
        IsInTime:    !now.Before(session.StartTime) && !now.After(session.EndTime),
        IsQRValid:   !now.Before(qr.ValidFrom) && !now.After(qr.ValidUntil),
    }

    result := &VerifyResult{
        Valid:   checks.IsActive && checks.IsCurrentQR && checks.IsInTime && checks.IsQRValid,
        Session: &session,
        Checks:  checks,
    }
    switch {
    case result.Valid:
        result.Reason = "code is valid"
    case !checks.IsActive:
        result.Reason = ErrSessionInactive.Error()
    case !checks.IsCurrentQR:
        result.Reason = ErrCodeRotated.Error()
    case !checks.IsInTime:
        result.Reason = ErrOutOfWindow.Error()
    default:
        result.Reason = "QR code has expired"
    }
    return result, nil
}
