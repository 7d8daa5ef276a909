package controllers

import (
    "errors"
    "net/http"

    "github.com/gin-gonic/gin"
    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/models"
)

// AssignmentController manages which operators are assigned to which
// environments.
type AssignmentController struct {
    DB *gorm.DB
}

type assignRequest struct {
    UserID string `json:"user_id" binding:"required"`
}

func (ac *AssignmentController) AssignUser(c *gin.Context) {
    environmentID := c.Param("id")

    var req assignRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    var env models.Environment
    if err := ac.DB.Where("id = ?", environmentID).First(&env).Error; err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "environment not found"})
        return
    }
    var user models.User
    if err := ac.DB.Where("id = ?", req.UserID).First(&user).Error; err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
        return
    }

    rec := models.UserEnvironment{UserID: req.UserID, EnvironmentID: environmentID}
    if err := ac.DB.Create(&rec).Error; err != nil {
        if errors.Is(err, gorm.ErrDuplicatedKey) {
            c.JSON(http.StatusConflict, gin.H{"error": "user already assigned to this environment"})
            return
        }
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusCreated, gin.H{"message": "assigned", "id": rec.ID})
}

func (ac *AssignmentController) UnassignUser(c *gin.Context) {
    res := ac.DB.Where("environment_id = ? AND user_id = ?", c.Param("id"), c.Param("user_id")).
        Delete(&models.UserEnvironment{})
    if res.Error != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": res.Error.Error()})
        return
    }
    if res.RowsAffected == 0 {
        c.JSON(http.StatusNotFound, gin.H{"error": "assignment not found"})
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "unassigned"})
}

func (ac *AssignmentController) ListAssignees(c *gin.Context) {
    var assignments []models.UserEnvironment
    if err := ac.DB.Where("environment_id = ?", c.Param("id")).Find(&assignments).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    ids := make([]string, 0, len(assignments))
    for _, a := range assignments {
        ids = append(ids, a.UserID)
    }
    var users []models.User
    if len(ids) > 0 {
        if err := ac.DB.Where("id IN ?", ids).Find(&users).Error; err != nil {
            c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
            return
        }
    }
    out := make([]gin.H, 0, len(users))
    for _, u := range users {
        out = append(out, gin.H{
            "id":       u.ID,
            "username": u.Username,
            "name":     u.Name,
            "role":     u.Role,
        })
    }
    c.JSON(http.StatusOK, gin.H{"data": out})
}
