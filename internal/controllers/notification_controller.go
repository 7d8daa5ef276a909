package controllers

import (
    "encoding/json"
    "net/http"

    "github.com/gin-gonic/gin"
    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/middleware"
    "github.com/ucampus/attendance_backend/internal/models"
)

type NotificationController struct {
    DB *gorm.DB
}

// List returns the caller's notifications, newest first.
func (nc *NotificationController) List(c *gin.Context) {
    user, _ := middleware.CurrentUser(c)

    q := nc.DB.Where("user_id = ?", user.ID)
    if c.Query("unread") == "true" {
        q = q.Where("is_read = ?", false)
    }

    var notifications []models.Notification
    if err := q.Order("created_at DESC").Limit(100).Find(&notifications).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }

    var unread int64
    nc.DB.Model(&models.Notification{}).
        Where("user_id = ? AND is_read = ?", user.ID, false).Count(&unread)

    out := make([]gin.H, 0, len(notifications))
    for i := range notifications {
        n := &notifications[i]
        entry := gin.H{
            "id":         n.ID,
            "type":       n.Type,
            "title":      n.Title,
            "message":    n.Message,
            "is_read":    n.IsRead,
            "created_at": n.CreatedAt,
        }
        if len(n.Data) > 0 {
            entry["data"] = json.RawMessage(n.Data)
        }
        out = append(out, entry)
    }

    c.JSON(http.StatusOK, gin.H{"data": out, "unread": unread})
}

// MarkRead flags one notification as read. Only the owner can do it.
func (nc *NotificationController) MarkRead(c *gin.Context) {
    user, _ := middleware.CurrentUser(c)

    res := nc.DB.Model(&models.Notification{}).
        Where("id = ? AND user_id = ?", c.Param("id"), user.ID).
        Update("is_read", true)
    if res.Error != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
        return
    }
    if res.RowsAffected == 0 {
        c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "notification read"})
}

// MarkAllRead flags every unread notification of the caller.
func (nc *NotificationController) MarkAllRead(c *gin.Context) {
    user, _ := middleware.CurrentUser(c)

    res := nc.DB.Model(&models.Notification{}).
        Where("user_id = ? AND is_read = ?", user.ID, false).
        Update("is_read", true)
    if res.Error != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "notifications read", "updated": res.RowsAffected})
}
