package ws

import (
    "net/http"

    "github.com/gin-gonic/gin"
    "github.com/gorilla/websocket"
    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/models"
)

var upgrader = websocket.Upgrader{
    CheckOrigin: func(r *http.Request) bool {
        // Allow all origins; rely on JWT auth.
        return true
    },
}

// FeedHandler upgrades a session feed subscription. Admins may watch any
// session; otherwise the caller must host the session or be assigned to
// its environment.
func FeedHandler(db *gorm.DB, hub *FeedHub) gin.HandlerFunc {
    return func(c *gin.Context) {
        uVal, ok := c.Get("user")
        if !ok {
            c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
            return
        }
        user := uVal.(models.User)
        sessionID := c.Param("id")

        var session models.Session
        if err := db.Where("id = ?", sessionID).First(&session).Error; err != nil {
            c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
            return
        }

        allowAll := user.Role == models.RoleAdmin
        if !allowAll {
            isHost := session.HostID != nil && *session.HostID == user.ID
            if !isHost {
                var assigned int64
                if err := db.Model(&models.UserEnvironment{}).
                    Where("user_id = ? AND environment_id = ?", user.ID, session.EnvironmentID).
                    Count(&assigned).Error; err != nil {
                    c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
                    return
                }
                if assigned == 0 {
                    c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
                    return
                }
            }
        }

        conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
        if err != nil {
            return
        }
        client := newFeedClient(hub, conn, sessionID, allowAll)
        hub.register <- client

        go client.writePump()
        client.readPump()
    }
}
