package routes

import (
    "github.com/gin-gonic/gin"
    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/attendance"
    "github.com/ucampus/attendance_backend/internal/config"
    "github.com/ucampus/attendance_backend/internal/controllers"
    "github.com/ucampus/attendance_backend/internal/middleware"
    "github.com/ucampus/attendance_backend/internal/models"
    "github.com/ucampus/attendance_backend/internal/ws"
)

func Register(r *gin.Engine, db *gorm.DB, cfg *config.Config, svc *attendance.Service, hub *ws.FeedHub) {
    authCtrl := &controllers.AuthController{
        DB:            db,
        AccessSecret:  cfg.JWTSecret,
        RefreshSecret: cfg.RefreshJWTSecret,
        AccessTTL:     cfg.AccessTokenTTL,
        RefreshTTL:    cfg.RefreshTokenTTL,
    }
    adminCtrl := &controllers.AdminController{DB: db}
    careerCtrl := &controllers.CareerController{DB: db}
    envCtrl := &controllers.EnvironmentController{DB: db}
    assignCtrl := &controllers.AssignmentController{DB: db}
    sessionCtrl := &controllers.SessionController{DB: db, Service: svc}
    attCtrl := &controllers.AttendanceController{DB: db, Service: svc}
    statsCtrl := &controllers.StatsController{DB: db}
    notifCtrl := &controllers.NotificationController{DB: db}

    // Public
    auth := r.Group("/api/v1/auth")
    {
        auth.POST("/register", authCtrl.RegisterStudent)
        auth.POST("/login", authCtrl.Login)
        auth.POST("/refresh", authCtrl.Refresh)
    }

    // Careers are public so the registration form can list them.
    r.GET("/api/v1/careers", careerCtrl.ListCareers)

    // Externals have no account; scanning stays open for them.
    r.POST("/api/v1/attendance/verify", attCtrl.Verify)
    r.POST("/api/v1/attendance/mark-external", attCtrl.MarkExternal)

    // Protected
    authMW := middleware.AuthMiddleware(db, cfg.JWTSecret)
    api := r.Group("/api/v1", authMW)
    {
        api.GET("/auth/me", authCtrl.Me)
        api.POST("/auth/logout", authCtrl.Logout)

        api.POST("/attendance/mark", attCtrl.Mark)
        api.GET("/attendance/me", attCtrl.MyAttendance)

        api.GET("/sessions/active", sessionCtrl.ListActiveSessions)
        api.GET("/sessions/:id", sessionCtrl.GetSession)

        api.GET("/notifications", notifCtrl.List)
        api.POST("/notifications/:id/read", notifCtrl.MarkRead)
        api.POST("/notifications/read-all", notifCtrl.MarkAllRead)

        api.GET("/environments/mine", envCtrl.ListMyEnvironments)

        // Hosting requires docente level or above
        hosts := api.Group("", middleware.RequireLevel(models.RoleLevel(models.RoleDocente)))
        {
            hosts.POST("/sessions", sessionCtrl.CreateSession)
            hosts.GET("/sessions/mine", sessionCtrl.ListMySessions)
            hosts.PUT("/sessions/:id", sessionCtrl.UpdateSession)
            hosts.POST("/sessions/:id/close", sessionCtrl.CloseSession)
            hosts.POST("/sessions/:id/qr", sessionCtrl.GenerateQR)
            hosts.GET("/sessions/:id/attendance", attCtrl.BySession)
        }

        operators := api.Group("", middleware.RequireRoles(models.RoleJefeLab))
        {
            operators.GET("/environments", envCtrl.ListEnvironments)
            operators.GET("/environments/:id", envCtrl.GetEnvironment)
            operators.GET("/stats/operator", statsCtrl.OperatorOverview)
        }

        // Live attendance feed for hosts and operators
        api.GET("/ws/sessions/:id/feed", ws.FeedHandler(db, hub))

        // Admin-only
        admin := api.Group("/admin", middleware.RequireRoles(models.RoleAdmin))
        {
            admin.GET("/users", adminCtrl.ListUsers)
            admin.POST("/users", authCtrl.RegisterUser)
            admin.GET("/users/:user_id", adminCtrl.GetUser)
            admin.PUT("/users/:user_id", adminCtrl.UpdateUser)
            admin.DELETE("/users/:user_id", adminCtrl.DeleteUser)

            admin.POST("/careers", careerCtrl.CreateCareer)
            admin.GET("/careers/:id", careerCtrl.GetCareer)
            admin.PUT("/careers/:id", careerCtrl.UpdateCareer)
            admin.DELETE("/careers/:id", careerCtrl.DeleteCareer)

            admin.POST("/environments", envCtrl.CreateEnvironment)
            admin.PUT("/environments/:id", envCtrl.UpdateEnvironment)
            admin.DELETE("/environments/:id", envCtrl.DeleteEnvironment)

            admin.POST("/environments/:id/users", assignCtrl.AssignUser)
            admin.DELETE("/environments/:id/users/:user_id", assignCtrl.UnassignUser)
            admin.GET("/environments/:id/users", assignCtrl.ListAssignees)

            admin.GET("/stats/overview", statsCtrl.Overview)
        }
    }
}
