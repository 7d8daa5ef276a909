package controllers

import (
    "errors"
    "net/http"
    "strings"

    "github.com/gin-gonic/gin"
    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/middleware"
    "github.com/ucampus/attendance_backend/internal/models"
)

type EnvironmentController struct {
    DB *gorm.DB
}

type createEnvironmentRequest struct {
    Name     string `json:"name" binding:"required"`
    Type     string `json:"type" binding:"required"`
    Location string `json:"location"`
    Capacity int    `json:"capacity"`
    Active   *bool  `json:"active"`
}

type updateEnvironmentRequest struct {
    Name     *string `json:"name"`
    Type     *string `json:"type"`
    Location *string `json:"location"`
    Capacity *int    `json:"capacity"`
    Active   *bool   `json:"active"`
}

func (ec *EnvironmentController) ListEnvironments(c *gin.Context) {
    var envs []models.Environment
    if err := ec.DB.Order("created_at DESC").Find(&envs).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"data": envs})
}

// ListMyEnvironments returns everything for admins, assigned environments
// for everyone else.
func (ec *EnvironmentController) ListMyEnvironments(c *gin.Context) {
    user, _ := middleware.CurrentUser(c)

    q := ec.DB.Order("created_at DESC")
    if user.Role != models.RoleAdmin {
        sub := ec.DB.Model(&models.UserEnvironment{}).Select("environment_id").Where("user_id = ?", user.ID)
        q = q.Where("id IN (?)", sub)
    }
    var envs []models.Environment
    if err := q.Find(&envs).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"data": envs})
}

func (ec *EnvironmentController) CreateEnvironment(c *gin.Context) {
    var req createEnvironmentRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    active := true
    if req.Active != nil {
        active = *req.Active
    }
    env := models.Environment{
        Name:     strings.TrimSpace(req.Name),
        Type:     req.Type,
        Location: req.Location,
        Capacity: req.Capacity,
        Active:   active,
    }
    if err := ec.DB.Create(&env).Error; err != nil {
        if errors.Is(err, gorm.ErrDuplicatedKey) {
            c.JSON(http.StatusConflict, gin.H{"error": "environment name already exists"})
            return
        }
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusCreated, gin.H{"message": "created", "id": env.ID})
}

func (ec *EnvironmentController) GetEnvironment(c *gin.Context) {
    var env models.Environment
    if err := ec.DB.Where("id = ?", c.Param("id")).First(&env).Error; err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "environment not found"})
        return
    }
    c.JSON(http.StatusOK, env)
}

func (ec *EnvironmentController) UpdateEnvironment(c *gin.Context) {
    var env models.Environment
    if err := ec.DB.Where("id = ?", c.Param("id")).First(&env).Error; err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "environment not found"})
        return
    }
    var req updateEnvironmentRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if req.Name != nil {
        env.Name = strings.TrimSpace(*req.Name)
    }
    if req.Type != nil {
        env.Type = *req.Type
    }
    if req.Location != nil {
        env.Location = *req.Location
    }
    if req.Capacity != nil {
        env.Capacity = *req.Capacity
    }
    if req.Active != nil {
        env.Active = *req.Active
    }
    if err := ec.DB.Save(&env).Error; err != nil {
        if errors.Is(err, gorm.ErrDuplicatedKey) {
            c.JSON(http.StatusConflict, gin.H{"error": "environment name already exists"})
            return
        }
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

func (ec *EnvironmentController) DeleteEnvironment(c *gin.Context) {
    var sessions int64
    if err := ec.DB.Model(&models.Session{}).Where("environment_id = ?", c.Param("id")).Count(&sessions).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    if sessions > 0 {
        // Sessions reference it; deactivate instead of removing history.
        if err := ec.DB.Model(&models.Environment{}).Where("id = ?", c.Param("id")).Update("active", false).Error; err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
            return
        }
        c.JSON(http.StatusOK, gin.H{"message": "deactivated (environment has sessions)"})
        return
    }
    if err := ec.DB.Where("id = ?", c.Param("id")).Delete(&models.Environment{}).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
