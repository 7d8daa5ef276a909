package controllers

import (
    "errors"
    "net/http"
    "strings"

    "github.com/gin-gonic/gin"
    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/models"
)

type CareerController struct {
    DB *gorm.DB
}

type createCareerRequest struct {
    Code string `json:"code" binding:"required"`
    Name string `json:"name" binding:"required"`
}

type updateCareerRequest struct {
    Code *string `json:"code"`
    Name *string `json:"name"`
}

func (cc *CareerController) ListCareers(c *gin.Context) {
    var careers []models.Career
    if err := cc.DB.Order("name ASC").Find(&careers).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"data": careers})
}

func (cc *CareerController) CreateCareer(c *gin.Context) {
    var req createCareerRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    career := models.Career{Code: strings.ToUpper(strings.TrimSpace(req.Code)), Name: req.Name}
    if err := cc.DB.Create(&career).Error; err != nil {
        if errors.Is(err, gorm.ErrDuplicatedKey) {
            c.JSON(http.StatusConflict, gin.H{"error": "career code already exists"})
            return
        }
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusCreated, gin.H{"message": "created", "id": career.ID})
}

func (cc *CareerController) GetCareer(c *gin.Context) {
    var career models.Career
    if err := cc.DB.Where("id = ?", c.Param("id")).First(&career).Error; err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "career not found"})
        return
    }
    c.JSON(http.StatusOK, career)
}

func (cc *CareerController) UpdateCareer(c *gin.Context) {
    var career models.Career
    if err := cc.DB.Where("id = ?", c.Param("id")).First(&career).Error; err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "career not found"})
        return
    }
    var req updateCareerRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if req.Code != nil {
        career.Code = strings.ToUpper(strings.TrimSpace(*req.Code))
    }
    if req.Name != nil {
        career.Name = *req.Name
    }
    if err := cc.DB.Save(&career).Error; err != nil {
        if errors.Is(err, gorm.ErrDuplicatedKey) {
            c.JSON(http.StatusConflict, gin.H{"error": "career code already exists"})
            return
        }
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

func (cc *CareerController) DeleteCareer(c *gin.Context) {
    var enrolled int64
    if err := cc.DB.Model(&models.StudentProfile{}).Where("career_id = ?", c.Param("id")).Count(&enrolled).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    if enrolled > 0 {
        c.JSON(http.StatusConflict, gin.H{"error": "career has enrolled students"})
        return
    }
    if err := cc.DB.Where("id = ?", c.Param("id")).Delete(&models.Career{}).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
