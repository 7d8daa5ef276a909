package attendance

import (
    "encoding/json"
    "fmt"
    "time"

    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/models"
)

// AnomalyConfig tunes the rapid-fire detection; zero values fall back to
// the defaults (more than 2 check-ins from one address within 60s).
type AnomalyConfig struct {
    Window      time.Duration
    IPThreshold int
}

func (c AnomalyConfig) withDefaults() AnomalyConfig {
    if c.Window <= 0 {
        c.Window = 60 * time.Second
    }
    if c.IPThreshold <= 0 {
        c.IPThreshold = 2
    }
    return c
}

// detectAnomaly recounts recent check-ins on the session from the same
// origin address, including the one being recorded. The detector is
// stateless: correctness depends only on the persisted rows, never on
// process lifetime. It annotates, it never blocks.
func (s *Service) detectAnomaly(tx *gorm.DB, sessionID, ip string, now time.Time) (bool, string, error) {
    if ip == "" {
        return false, "", nil
    }
    cfg := s.Anomaly.withDefaults()

    var recent int64
    err := tx.Model(&models.Attendance{}).
        Where("session_id = ? AND ip_address = ? AND check_in_time >= ?", sessionID, ip, now.Add(-cfg.Window)).
        Count(&recent).Error
    if err != nil {
        return false, "", err
    }

    if recent+1 <= int64(cfg.IPThreshold) {
        return false, "", nil
    }
    reason := fmt.Sprintf("multiple check-ins from the same network address within %d seconds", int(cfg.Window.Seconds()))
    return true, reason, nil
}

func (s *Service) notifyHost(tx *gorm.DB, session *models.Session, record *models.Attendance, reason string) error {
    if session.HostID == nil {
        return nil
    }
    data, err := json.Marshal(map[string]interface{}{
        "sessionId":    session.ID,
        "attendanceId": record.ID,
    })
    if err != nil {
        return err
    }
    return tx.Create(&models.Notification{
        UserID:  *session.HostID,
        Type:    "SUSPICIOUS_ATTENDANCE",
        Title:   "Suspicious attendance detected",
        Message: fmt.Sprintf("Suspicious check-in recorded in %s: %s", session.Name, reason),
        Data:    data,
    }).Error
}
