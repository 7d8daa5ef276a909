package attendance

import (
    "errors"
    "time"

    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/models"
    "github.com/ucampus/attendance_backend/internal/utils"
)

// CodeIssue is the answer to "what code does this session show right now".
type CodeIssue struct {
    Code       string
    ValidUntil time.Time
    Rotated    bool
}

// GetOrRotateCode returns the session's current code, rotating it first if
// forceNew is set, no code exists yet, or the rotation interval has
// elapsed. Repeated calls within one epoch are idempotent.
//
// The rotation write is a compare-and-swap on last_qr_rotation: of two
// concurrent rotations only one lands, and the loser re-reads and returns
// the winner's code instead of overwriting it.
func (s *Service) GetOrRotateCode(sessionID string, forceNew bool, actor models.User) (*CodeIssue, error) {
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

    now := s.clock()
    if !IsCurrentlyActive(&session, now) {
        return nil, ErrSessionInactive
    }

    issue, err := s.rotateIfDue(&session, forceNew, now)
    if err == nil || !errors.Is(err, gorm.ErrDuplicatedKey) {
        return issue, err
    }
    // Token collision on the qr_codes unique index; retry once with a
    // fresh token.
    return s.rotateIfDue(&session, forceNew, now)
}

func (s *Service) rotateIfDue(session *models.Session, forceNew bool, now time.Time) (*CodeIssue, error) {
    interval := time.Duration(session.QRRotationMinutes) * time.Minute

    due := forceNew || session.CurrentQRCode == nil || session.LastQRRotation == nil ||
        now.Sub(*session.LastQRRotation) >= interval
    if !due {
        return &CodeIssue{
            Code:       *session.CurrentQRCode,
            ValidUntil: clampToEnd(session.LastQRRotation.Add(interval), session.EndTime),
        }, nil
    }

    newCode, err := utils.GenerateCode(utils.QRTokenLength)
    if err != nil {
        return nil, err
    }
    validUntil := clampToEnd(now.Add(interval), session.EndTime)

    var issue *CodeIssue
    err = s.DB.Transaction(func(tx *gorm.DB) error {
        swap := tx.Model(&models.Session{}).Where("id = ?", session.ID)
        if session.LastQRRotation == nil {
            swap = swap.Where("last_qr_rotation IS NULL")
        } else {
            swap = swap.Where("last_qr_rotation = ?", *session.LastQRRotation)
        }
        res := swap.Updates(map[string]interface{}{
            "current_qr_code":  newCode,
            "last_qr_rotation": now,
        })
        if res.Error != nil {
            return res.Error
        }
        if res.RowsAffected == 0 {
            // Lost the race; adopt the winner's code.
            var fresh models.Session
            if err := tx.Where("id = ?", session.ID).First(&fresh).Error; err != nil {
                return err
            }
            if fresh.CurrentQRCode == nil || fresh.LastQRRotation == nil {
                return ErrConflict
            }
            freshInterval := time.Duration(fresh.QRRotationMinutes) * time.Minute
            issue = &CodeIssue{
                Code:       *fresh.CurrentQRCode,
                ValidUntil: clampToEnd(fresh.LastQRRotation.Add(freshInterval), fresh.EndTime),
            }
            return nil
        }

        qr := models.QRCode{
            SessionID:  session.ID,
            Code:       newCode,
            ValidFrom:  now,
            ValidUntil: validUntil,
        }
        if err := tx.Create(&qr).Error; err != nil {
            return err
        }
        session.CurrentQRCode = &newCode
        session.LastQRRotation = &now
        issue = &CodeIssue{Code: newCode, ValidUntil: validUntil, Rotated: true}
        return nil
    })
    if err != nil {
        return nil, err
    }
    return issue, nil
}

func clampToEnd(t, end time.Time) time.Time {
    if t.After(end) {
        return end
    }
    return t
}
