package controllers

import (
    "errors"
    "net/http"
    "time"

    "github.com/gin-gonic/gin"
    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/attendance"
    "github.com/ucampus/attendance_backend/internal/middleware"
    "github.com/ucampus/attendance_backend/internal/models"
)

// lateGrace is the tolerance after session start before a check-in counts
// as late in the per-user stats.
const lateGrace = 15 * time.Minute

type AttendanceController struct {
    DB      *gorm.DB
    Service *attendance.Service
}

type markRequest struct {
    Code string `json:"code" binding:"required"`
}

// Mark records a scan for the authenticated user. A first scan checks in,
// a second checks out; anything further is rejected by the pipeline.
func (ac *AttendanceController) Mark(c *gin.Context) {
    user, _ := middleware.CurrentUser(c)

    var req markRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    result, err := ac.Service.MarkAttendance(
        req.Code,
        attendance.RegisteredAttendee(user.ID),
        originFrom(c),
    )
    if err != nil {
        respondCoreError(c, err)
        return
    }
    respondMark(c, result)
}

type markExternalRequest struct {
    Code        string `json:"code" binding:"required"`
    DNI         string `json:"dni" binding:"required"`
    FullName    string `json:"full_name" binding:"required"`
    Institution string `json:"institution"`
    Email       string `json:"email"`
}

// MarkExternal records a scan for a visitor identified by DNI. The person
// record is reused across sessions; the pipeline rejects the scan when the
// session does not admit externals.
func (ac *AttendanceController) MarkExternal(c *gin.Context) {
    var req markExternalRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    var person models.ExternalPerson
    err := ac.DB.Where("dni = ?", req.DNI).First(&person).Error
    if errors.Is(err, gorm.ErrRecordNotFound) {
        person = models.ExternalPerson{
            DNI:         req.DNI,
            FullName:    req.FullName,
            Institution: req.Institution,
            Email:       req.Email,
        }
        err = ac.DB.Create(&person).Error
        if errors.Is(err, gorm.ErrDuplicatedKey) {
            // lost a concurrent create; the row exists now
            err = ac.DB.Where("dni = ?", req.DNI).First(&person).Error
        }
    }
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }

    result, err := ac.Service.MarkAttendance(
        req.Code,
        attendance.ExternalAttendee(person.ID),
        originFrom(c),
    )
    if err != nil {
        respondCoreError(c, err)
        return
    }
    respondMark(c, result)
}

type verifyRequest struct {
    Code string `json:"code" binding:"required"`
}

// Verify answers whether a code would currently be accepted, without
// recording anything.
func (ac *AttendanceController) Verify(c *gin.Context) {
    var req verifyRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    result, err := ac.Service.VerifyCode(req.Code)
    if err != nil {
        if errors.Is(err, attendance.ErrInvalidCode) {
            c.JSON(http.StatusNotFound, gin.H{
                "data": gin.H{"valid": false, "reason": err.Error()},
            })
            return
        }
        respondCoreError(c, err)
        return
    }

    out := gin.H{
        "valid":  result.Valid,
        "checks": result.Checks,
    }
    if result.Reason != "" {
        out["reason"] = result.Reason
    }
    if result.Session != nil {
        out["session"] = gin.H{
            "id":         result.Session.ID,
            "name":       result.Session.Name,
            "type":       result.Session.Type,
            "start_time": result.Session.StartTime,
            "end_time":   result.Session.EndTime,
        }
    }
    c.JSON(http.StatusOK, gin.H{"data": out})
}

// MyAttendance lists the caller's attendance history with punctuality stats.
func (ac *AttendanceController) MyAttendance(c *gin.Context) {
    user, _ := middleware.CurrentUser(c)

    var records []models.Attendance
    if err := ac.DB.Preload("Session").Preload("Session.Environment").
        Where("user_id = ?", user.ID).
        Order("check_in_time DESC").
        Find(&records).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }

    var onTime, late, completed int
    out := make([]gin.H, 0, len(records))
    for i := range records {
        a := &records[i]
        entry := gin.H{
            "id":             a.ID,
            "session_id":     a.SessionID,
            "check_in_time":  a.CheckInTime,
            "check_out_time": a.CheckOutTime,
        }
        if a.Session != nil {
            entry["session"] = gin.H{
                "name":       a.Session.Name,
                "type":       a.Session.Type,
                "start_time": a.Session.StartTime,
                "end_time":   a.Session.EndTime,
            }
            if a.Session.Environment != nil {
                entry["environment"] = a.Session.Environment.Name
            }
            if a.CheckInTime.After(a.Session.StartTime.Add(lateGrace)) {
                late++
                entry["late"] = true
            } else {
                onTime++
                entry["late"] = false
            }
        }
        if a.CheckOutTime != nil {
            completed++
        }
        out = append(out, entry)
    }

    c.JSON(http.StatusOK, gin.H{
        "data": out,
        "stats": gin.H{
            "total":     len(records),
            "on_time":   onTime,
            "late":      late,
            "completed": completed,
        },
    })
}

// BySession lists a session's attendance. Only the host, operators and
// admins may read it.
func (ac *AttendanceController) BySession(c *gin.Context) {
    user, _ := middleware.CurrentUser(c)

    var session models.Session
    if err := ac.DB.Where("id = ?", c.Param("id")).First(&session).Error; err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
        return
    }
    isHost := session.HostID != nil && *session.HostID == user.ID
    if user.Role != models.RoleAdmin && user.Role != models.RoleJefeLab && !isHost {
        c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
        return
    }

    var records []models.Attendance
    if err := ac.DB.Preload("User").Preload("ExternalPerson").
        Where("session_id = ?", session.ID).
        Order("check_in_time ASC").
        Find(&records).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }

    var checkedOut, suspicious, externals int
    out := make([]gin.H, 0, len(records))
    for i := range records {
        a := &records[i]
        entry := gin.H{
            "id":             a.ID,
            "check_in_time":  a.CheckInTime,
            "check_out_time": a.CheckOutTime,
            "is_suspicious":  a.IsSuspicious,
            "ip_address":     a.IPAddress,
        }
        if a.SuspiciousReason != nil {
            entry["suspicious_reason"] = *a.SuspiciousReason
        }
        switch {
        case a.User != nil:
            entry["attendee"] = gin.H{"kind": "user", "id": a.User.ID, "name": a.User.Name}
        case a.ExternalPerson != nil:
            externals++
            entry["attendee"] = gin.H{
                "kind":        "external",
                "id":          a.ExternalPerson.ID,
                "name":        a.ExternalPerson.FullName,
                "institution": a.ExternalPerson.Institution,
            }
        }
        if a.CheckOutTime != nil {
            checkedOut++
        }
        if a.IsSuspicious {
            suspicious++
        }
        out = append(out, entry)
    }

    c.JSON(http.StatusOK, gin.H{
        "data": out,
        "summary": gin.H{
            "total":       len(records),
            "checked_out": checkedOut,
            "suspicious":  suspicious,
            "externals":   externals,
        },
    })
}

func originFrom(c *gin.Context) attendance.Origin {
    return attendance.Origin{
        IPAddress:  c.ClientIP(),
        DeviceInfo: c.Request.UserAgent(),
    }
}

func respondMark(c *gin.Context, result *attendance.MarkResult) {
    out := gin.H{
        "type": result.Type,
        "attendance": gin.H{
            "id":             result.Attendance.ID,
            "session_id":     result.Attendance.SessionID,
            "check_in_time":  result.Attendance.CheckInTime,
            "check_out_time": result.Attendance.CheckOutTime,
        },
    }
    if result.Warning != "" {
        out["warning"] = result.Warning
    }
    status := http.StatusCreated
    if result.Type == attendance.MarkCheckOut {
        status = http.StatusOK
    }
    c.JSON(status, gin.H{"data": out})
}
