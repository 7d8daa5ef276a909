package attendance

import "time"

// FeedEvent is pushed to subscribed host/lab-manager dashboards on every
// accepted scan.
type FeedEvent struct {
    Type          string    `json:"type"` // "checkin" or "checkout"
    SessionID     string    `json:"session_id"`
    AttendanceID  string    `json:"attendance_id"`
    AttendeeName  string    `json:"attendee_name,omitempty"`
    External      bool      `json:"external"`
    Timestamp     time.Time `json:"timestamp"`
    Suspicious    bool      `json:"suspicious"`
    SuspiciousMsg string    `json:"suspicious_reason,omitempty"`
}

type FeedPublisher interface {
    PublishAttendance(event FeedEvent)
}

func (s *Service) publish(event FeedEvent) {
    if s.Feed != nil {
        s.Feed.PublishAttendance(event)
    }
}
