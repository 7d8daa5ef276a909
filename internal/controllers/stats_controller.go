package controllers

import (
    "net/http"
    "time"

    "github.com/gin-gonic/gin"
    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/middleware"
    "github.com/ucampus/attendance_backend/internal/models"
)

type StatsController struct {
    DB *gorm.DB
}

// Overview is the admin dashboard snapshot.
func (st *StatsController) Overview(c *gin.Context) {
    now := time.Now().UTC()
    dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

    var totalUsers, totalEnvironments, activeSessions, todayAttendances, todaySuspicious int64
    st.DB.Model(&models.User{}).Where("active = ?", true).Count(&totalUsers)
    st.DB.Model(&models.Environment{}).Where("active = ?", true).Count(&totalEnvironments)
    st.DB.Model(&models.Session{}).
        Where("is_active = ? AND start_time <= ? AND end_time >= ?", true, now, now).
        Count(&activeSessions)
    st.DB.Model(&models.Attendance{}).
        Where("check_in_time >= ?", dayStart).Count(&todayAttendances)
    st.DB.Model(&models.Attendance{}).
        Where("check_in_time >= ? AND is_suspicious = ?", dayStart, true).
        Count(&todaySuspicious)

    c.JSON(http.StatusOK, gin.H{"data": gin.H{
        "total_users":        totalUsers,
        "total_environments": totalEnvironments,
        "active_sessions":    activeSessions,
        "today_attendances":  todayAttendances,
        "today_suspicious":   todaySuspicious,
    }})
}

// OperatorOverview scopes the snapshot to the environments assigned to the
// caller. Admins see everything.
func (st *StatsController) OperatorOverview(c *gin.Context) {
    user, _ := middleware.CurrentUser(c)
    now := time.Now().UTC()
    dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

    sessions := st.DB.Model(&models.Session{})
    if user.Role != models.RoleAdmin {
        envIDs := st.DB.Model(&models.UserEnvironment{}).
            Select("environment_id").Where("user_id = ?", user.ID)
        sessions = sessions.Where("environment_id IN (?)", envIDs)
    }

    var activeSessions, todaySessions int64
    sessions.Session(&gorm.Session{}).
        Where("is_active = ? AND start_time <= ? AND end_time >= ?", true, now, now).
        Count(&activeSessions)
    sessions.Session(&gorm.Session{}).
        Where("start_time >= ?", dayStart).Count(&todaySessions)

    sessionIDs := st.DB.Model(&models.Session{}).Select("id")
    if user.Role != models.RoleAdmin {
        envIDs := st.DB.Model(&models.UserEnvironment{}).
            Select("environment_id").Where("user_id = ?", user.ID)
        sessionIDs = sessionIDs.Where("environment_id IN (?)", envIDs)
    }

    var todayAttendances, todaySuspicious int64
    st.DB.Model(&models.Attendance{}).
        Where("check_in_time >= ? AND session_id IN (?)", dayStart, sessionIDs).
        Count(&todayAttendances)
    st.DB.Model(&models.Attendance{}).
        Where("check_in_time >= ? AND is_suspicious = ? AND session_id IN (?)", dayStart, true, sessionIDs).
        Count(&todaySuspicious)

    c.JSON(http.StatusOK, gin.H{"data": gin.H{
        "active_sessions":   activeSessions,
        "today_sessions":    todaySessions,
        "today_attendances": todayAttendances,
        "today_suspicious":  todaySuspicious,
    }})
}
