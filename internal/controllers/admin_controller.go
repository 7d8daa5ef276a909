package controllers

import (
    "errors"
    "fmt"
    "net/http"
    "strconv"
    "strings"

    "github.com/gin-gonic/gin"
    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/models"
    "github.com/ucampus/attendance_backend/internal/utils"
)

type AdminController struct {
    DB *gorm.DB
}

func (a *AdminController) ListUsers(c *gin.Context) {
    all := strings.EqualFold(c.Query("all"), "true") || c.Query("all") == "1"
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

    sortBy := strings.ToLower(c.DefaultQuery("sort_by", "created_at"))
    sortDir := strings.ToUpper(c.DefaultQuery("sort_dir", "DESC"))
    if sortDir != "ASC" && sortDir != "DESC" {
        sortDir = "DESC"
    }
    allowedSorts := map[string]string{
        "id":         "id",
        "created_at": "created_at",
        "username":   "username",
        "name":       "name",
        "role":       "role",
    }
    sortCol, ok := allowedSorts[sortBy]
    if !ok {
        sortCol = "created_at"
    }
    order := fmt.Sprintf("%s %s", sortCol, sortDir)

    base := a.DB.Model(&models.User{})
    if role := strings.TrimSpace(c.Query("role")); role != "" {
        if !models.IsValidRole(role) {
            c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
            return
        }
        base = base.Where("role = ?", role)
    }
    if q := strings.TrimSpace(c.Query("q")); q != "" {
        like := "%" + q + "%"
        base = base.Where("name LIKE ? OR username LIKE ?", like, like)
    }

    var total int64
    if err := base.Count(&total).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }

    listQ := base.Session(&gorm.Session{}).Order(order)
    if !all {
        listQ = listQ.Offset((page - 1) * limit).Limit(limit)
    }
    var users []models.User
    if err := listQ.Find(&users).Error; err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }

    out := make([]gin.H, 0, len(users))
    for _, u := range users {
        out = append(out, gin.H{
            "id":         u.ID,
            "username":   u.Username,
            "name":       u.Name,
            "email":      u.Email,
            "role":       u.Role,
            "active":     u.Active,
            "created_at": u.CreatedAt,
        })
    }
    meta := gin.H{"total": total, "all": all}
    if !all {
        meta["limit"] = limit
        meta["page"] = page
        meta["sort_by"] = sortCol
        meta["sort_dir"] = sortDir
    }
    c.JSON(http.StatusOK, gin.H{"data": out, "meta": meta})
}

func (a *AdminController) GetUser(c *gin.Context) {
    id := strings.TrimSpace(c.Param("user_id"))
    var user models.User
    if err := a.DB.Preload("StudentProfile.Career").Where("id = ?", id).First(&user).Error; err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
        return
    }
    out := gin.H{
        "id":         user.ID,
        "username":   user.Username,
        "name":       user.Name,
        "email":      user.Email,
        "role":       user.Role,
        "active":     user.Active,
        "created_at": user.CreatedAt,
        "updated_at": user.UpdatedAt,
    }
    if user.StudentProfile != nil {
        p := gin.H{
            "student_code": user.StudentProfile.StudentCode,
            "dni":          user.StudentProfile.DNI,
            "phone_number": user.StudentProfile.PhoneNumber,
        }
        if user.StudentProfile.Career != nil {
            p["career"] = user.StudentProfile.Career.Name
        }
        out["student_profile"] = p
    }
    c.JSON(http.StatusOK, out)
}

type updateUserRequest struct {
    Name     *string `json:"name"`
    Email    *string `json:"email"`
    Role     *string `json:"role"`
    Active   *bool   `json:"active"`
    Password *string `json:"password"`
}

func (a *AdminController) UpdateUser(c *gin.Context) {
    id := strings.TrimSpace(c.Param("user_id"))
    var user models.User
    if err := a.DB.Where("id = ?", id).First(&user).Error; err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
        return
    }

    var req updateUserRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if req.Name != nil {
        user.Name = *req.Name
    }
    if req.Email != nil {
        user.Email = *req.Email
    }
    if req.Role != nil {
        if !models.IsValidRole(*req.Role) {
            c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
            return
        }
        user.Role = *req.Role
    }
    if req.Active != nil {
        user.Active = *req.Active
    }
    if req.Password != nil {
        pw, err := utils.HashPassword(*req.Password)
        if err != nil {
            c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
            return
        }
        user.Password = pw
    }

    if err := a.DB.Save(&user).Error; err != nil {
        if errors.Is(err, gorm.ErrDuplicatedKey) {
            c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
            return
        }
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "updated"})
}

// DeleteUser deactivates rather than removes: attendance history references
// users and is retained for audit.
func (a *AdminController) DeleteUser(c *gin.Context) {
    id := strings.TrimSpace(c.Param("user_id"))
    res := a.DB.Model(&models.User{}).Where("id = ?", id).Update("active", false)
    if res.Error != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": res.Error.Error()})
        return
    }
    if res.RowsAffected == 0 {
        c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "deactivated"})
}
