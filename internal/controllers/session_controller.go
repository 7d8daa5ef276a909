package controllers

import (
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/gin-gonic/gin"
    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/attendance"
    "github.com/ucampus/attendance_backend/internal/middleware"
    "github.com/ucampus/attendance_backend/internal/models"
)

type SessionController struct {
    DB      *gorm.DB
    Service *attendance.Service
}

type createSessionRequest struct {
    EnvironmentID     string    `json:"environment_id" binding:"required"`
    Name              string    `json:"name" binding:"required"`
    Type              string    `json:"type" binding:"required"`
    AllowExternals    bool      `json:"allow_externals"`
    HostName          string    `json:"host_name"`
    StartTime         time.Time `json:"start_time" binding:"required"`
    EndTime           time.Time `json:"end_time" binding:"required"`
    QRRotationMinutes int       `json:"qr_rotation_minutes"`
}

func (sc *SessionController) CreateSession(c *gin.Context) {
    user, _ := middleware.CurrentUser(c)

    var req createSessionRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    in := attendance.CreateSessionInput{
        EnvironmentID:     req.EnvironmentID,
        Name:              req.Name,
        Type:              req.Type,
        HostID:            &user.ID,
        AllowExternals:    req.AllowExternals,
        StartTime:         req.StartTime,
        EndTime:           req.EndTime,
        QRRotationMinutes: req.QRRotationMinutes,
    }
    if req.AllowExternals {
        in.HostName = req.HostName
    }

    session, err := sc.Service.CreateSession(in)
    if err != nil {
        respondCoreError(c, err)
        return
    }
    c.JSON(http.StatusCreated, gin.H{
        "message": "session created",
        "data":    sessionResponse(session, sc.Service),
    })
}

type updateSessionRequest struct {
    Name              *string    `json:"name"`
    Type              *string    `json:"type"`
    StartTime         *time.Time `json:"start_time"`
    EndTime           *time.Time `json:"end_time"`
    QRRotationMinutes *int       `json:"qr_rotation_minutes"`
    AllowExternals    *bool      `json:"allow_externals"`
}

func (sc *SessionController) UpdateSession(c *gin.Context) {
    user, _ := middleware.CurrentUser(c)

    var req updateSessionRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    session, err := sc.Service.UpdateSession(c.Param("id"), user, attendance.UpdateSessionInput{
        Name:              req.Name,
        Type:              req.Type,
        StartTime:         req.StartTime,
        EndTime:           req.EndTime,
        QRRotationMinutes: req.QRRotationMinutes,
        AllowExternals:    req.AllowExternals,
    })
    if err != nil {
        respondCoreError(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "session updated", "data": sessionResponse(session, sc.Service)})
}

func (sc *SessionController) GetSession(c *gin.Context) {
    var session models.Session
    if err := sc.DB.Preload("Environment").Where("id = ?", c.Param("id")).First(&session).Error; err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
        return
    }
    var attendances int64
    sc.DB.Model(&models.Attendance{}).Where("session_id = ?", session.ID).Count(&attendances)

    out := sessionResponse(&session, sc.Service)
    out["attendance_count"] = attendances
    c.JSON(http.StatusOK, gin.H{"data": out})
}

// ListMySessions returns the sessions hosted by the caller.
func (sc *SessionController) ListMySessions(c *gin.Context) {
    user, _ := middleware.CurrentUser(c)

    limit := 20
    page := 1
    if v := c.Query("limit"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 {
            limit = n
        }
    }
    if v := c.Query("page"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 {
            page = n
        }
    }

    base := sc.DB.Model(&models.Session{}).Where("host_id = ?", user.ID)
    if active := strings.TrimSpace(c.Query("active")); active != "" {
        switch strings.ToLower(active) {
        case "true", "1":
            base = base.Where("is_active = ?", true)
        case "false", "0":
            base = base.Where("is_active = ?", false)
        default:
            c.JSON(http.StatusBadRequest, gin.H{"error": "invalid active value"})
            return
        }
    }

    var total int64
    if err := base.Count(&total).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }

    var sessions []models.Session
    if err := base.Session(&gorm.Session{}).Preload("Environment").
        Order("start_time DESC").
        Offset((page - 1) * limit).Limit(limit).
        Find(&sessions).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }

    out := make([]gin.H, 0, len(sessions))
    for i := range sessions {
        out = append(out, sessionResponse(&sessions[i], sc.Service))
    }
    c.JSON(http.StatusOK, gin.H{
        "data": out,
        "meta": gin.H{"total": total, "page": page, "limit": limit},
    })
}

// ListActiveSessions lists sessions currently accepting scans, optionally
// filtered by environment.
func (sc *SessionController) ListActiveSessions(c *gin.Context) {
    now := time.Now().UTC()
    q := sc.DB.Preload("Environment").
        Where("is_active = ? AND start_time <= ? AND end_time >= ?", true, now, now)
    if envID := strings.TrimSpace(c.Query("environment_id")); envID != "" {
        q = q.Where("environment_id = ?", envID)
    }
    var sessions []models.Session
    if err := q.Find(&sessions).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    out := make([]gin.H, 0, len(sessions))
    for i := range sessions {
        out = append(out, sessionResponse(&sessions[i], sc.Service))
    }
    c.JSON(http.StatusOK, gin.H{"data": out})
}

func (sc *SessionController) CloseSession(c *gin.Context) {
    user, _ := middleware.CurrentUser(c)

    session, err := sc.Service.CloseSession(c.Param("id"), user)
    if err != nil {
        respondCoreError(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "session closed", "data": sessionResponse(session, sc.Service)})
}

type generateQRRequest struct {
    ForceNew bool `json:"force_new"`
}

// GenerateQR returns the session's current code, rotating first when due
// or forced. Safe to poll: within one rotation epoch it answers the same
// code every time.
func (sc *SessionController) GenerateQR(c *gin.Context) {
    user, _ := middleware.CurrentUser(c)

    var req generateQRRequest
    if c.Request.ContentLength > 0 {
        if err := c.ShouldBindJSON(&req); err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
            return
        }
    }

    issue, err := sc.Service.GetOrRotateCode(c.Param("id"), req.ForceNew, user)
    if err != nil {
        respondCoreError(c, err)
        return
    }
    c.JSON(http.StatusOK, gin.H{
        "data": gin.H{
            "code":        issue.Code,
            "valid_until": issue.ValidUntil,
            "rotated":     issue.Rotated,
        },
    })
}

func sessionResponse(s *models.Session, svc *attendance.Service) gin.H {
    now := time.Now().UTC()
    if svc != nil && svc.Now != nil {
        now = svc.Now().UTC()
    }
    out := gin.H{
        "id":                  s.ID,
        "environment_id":      s.EnvironmentID,
        "name":                s.Name,
        "type":                s.Type,
        "host_id":             s.HostID,
        "host_name":           s.HostName,
        "allow_externals":     s.AllowExternals,
        "start_time":          s.StartTime,
        "end_time":            s.EndTime,
        "qr_rotation_minutes": s.QRRotationMinutes,
        "is_active":           attendance.IsCurrentlyActive(s, now),
        "created_at":          s.CreatedAt,
    }
    if s.Environment != nil {
        out["environment"] = gin.H{
            "id":       s.Environment.ID,
            "name":     s.Environment.Name,
            "type":     s.Environment.Type,
            "location": s.Environment.Location,
        }
    }
    return out
}
