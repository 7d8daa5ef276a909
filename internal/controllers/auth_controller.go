package controllers

import (
    "errors"
    "net/http"
    "time"

    "github.com/gin-gonic/gin"
    "github.com/golang-jwt/jwt/v5"
    "github.com/google/uuid"
    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/middleware"
    "github.com/ucampus/attendance_backend/internal/models"
    "github.com/ucampus/attendance_backend/internal/utils"
)

type AuthController struct {
    DB            *gorm.DB
    AccessSecret  string
    RefreshSecret string
    AccessTTL     time.Duration
    RefreshTTL    time.Duration
}

type registerStudentRequest struct {
    StudentCode string `json:"student_code" binding:"required"`
    DNI         string `json:"dni" binding:"required"`
    FullName    string `json:"full_name" binding:"required"`
    Password    string `json:"password" binding:"required,min=6"`
    Email       string `json:"email" binding:"omitempty,email"`
    PhoneNumber string `json:"phone_number"`
    CareerID    string `json:"career_id" binding:"required"`
}

type registerUserRequest struct {
    Username string `json:"username" binding:"required"`
    Name     string `json:"name" binding:"required"`
    Password string `json:"password" binding:"required,min=6"`
    Email    string `json:"email" binding:"omitempty,email"`
    Role     string `json:"role" binding:"required"`
    Active   *bool  `json:"active"`
}

type loginRequest struct {
    Username string `json:"username" binding:"required"`
    Password string `json:"password" binding:"required"`
}

// RegisterStudent creates an ESTUDIANTE user with a student profile; the
// student code doubles as the login username.
func (a *AuthController) RegisterStudent(c *gin.Context) {
    var req registerStudentRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    var career models.Career
    if err := a.DB.Where("id = ?", req.CareerID).First(&career).Error; err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid career"})
        return
    }

    pw, err := utils.HashPassword(req.Password)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
        return
    }

    user := models.User{
        Username: req.StudentCode,
        Name:     req.FullName,
        Email:    req.Email,
        Password: pw,
        Role:     models.RoleEstudiante,
        Active:   true,
    }

    err = a.DB.Transaction(func(tx *gorm.DB) error {
        if err := tx.Create(&user).Error; err != nil {
            return err
        }
        return tx.Create(&models.StudentProfile{
            UserID:      user.ID,
            StudentCode: req.StudentCode,
            DNI:         req.DNI,
            FullName:    req.FullName,
            PhoneNumber: req.PhoneNumber,
            CareerID:    req.CareerID,
        }).Error
    })
    if err != nil {
        if errors.Is(err, gorm.ErrDuplicatedKey) {
            c.JSON(http.StatusConflict, gin.H{"error": "student code or DNI already registered"})
            return
        }
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    c.JSON(http.StatusCreated, gin.H{
        "message":   "registered",
        "user_id":   user.ID,
        "username":  user.Username,
        "full_name": user.Name,
        "role":      user.Role,
        "career":    career.Name,
    })
}

// RegisterUser is the admin-only endpoint for non-student accounts.
func (a *AuthController) RegisterUser(c *gin.Context) {
    var req registerUserRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    if !models.IsValidRole(req.Role) {
        c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
        return
    }

    pw, err := utils.HashPassword(req.Password)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
        return
    }

    active := true
    if req.Active != nil {
        active = *req.Active
    }

    user := models.User{
        Username: req.Username,
        Name:     req.Name,
        Email:    req.Email,
        Password: pw,
        Role:     req.Role,
        Active:   active,
    }
    if err := a.DB.Create(&user).Error; err != nil {
        if errors.Is(err, gorm.ErrDuplicatedKey) {
            c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
            return
        }
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    c.JSON(http.StatusCreated, gin.H{
        "message":  "registered",
        "user_id":  user.ID,
        "username": user.Username,
        "role":     user.Role,
    })
}

func (a *AuthController) Login(c *gin.Context) {
    var req loginRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    var user models.User
    if err := a.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
        c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
        return
    }
    if !user.Active || !utils.CheckPassword(user.Password, req.Password) {
        c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
        return
    }

    access, refresh, err := a.issueTokens(user)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{
        "access_token":       access.Token,
        "token_type":         "Bearer",
        "expires_in":         int(a.AccessTTL.Seconds()),
        "role":               user.Role,
        "role_level":         models.RoleLevel(user.Role),
        "refresh_token":      refresh.Token,
        "refresh_expires_in": int(a.RefreshTTL.Seconds()),
    })
}

func (a *AuthController) Me(c *gin.Context) {
    user, _ := middleware.CurrentUser(c)

    out := gin.H{
        "user_id":    user.ID,
        "username":   user.Username,
        "name":       user.Name,
        "email":      user.Email,
        "role":       user.Role,
        "role_level": models.RoleLevel(user.Role),
        "active":     user.Active,
        "created_at": user.CreatedAt,
    }
    if user.Role == models.RoleEstudiante {
        var profile models.StudentProfile
        if err := a.DB.Preload("Career").Where("user_id = ?", user.ID).First(&profile).Error; err == nil {
            p := gin.H{
                "student_code": profile.StudentCode,
                "dni":          profile.DNI,
                "phone_number": profile.PhoneNumber,
            }
            if profile.Career != nil {
                p["career"] = profile.Career.Name
            }
            out["student_profile"] = p
        }
    }
    c.JSON(http.StatusOK, out)
}

type tokenPair struct {
    Token string
    JTI   string
}

func (a *AuthController) issueTokens(user models.User) (access tokenPair, refresh tokenPair, err error) {
    now := time.Now().UTC()
    acl := middleware.Claims{
        UserID: user.ID,
        Role:   user.Role,
        Name:   user.Name,
        RegisteredClaims: jwt.RegisteredClaims{
            Issuer:    "attendance_backend",
            IssuedAt:  jwt.NewNumericDate(now),
            ExpiresAt: jwt.NewNumericDate(now.Add(a.AccessTTL)),
            Subject:   user.ID,
        },
    }
    at := jwt.NewWithClaims(jwt.SigningMethodHS256, acl)
    atStr, err := at.SignedString([]byte(a.AccessSecret))
    if err != nil {
        return
    }
    access = tokenPair{Token: atStr}

    jti := uuid.NewString()
    rcl := jwt.RegisteredClaims{
        Issuer:    "attendance_backend",
        IssuedAt:  jwt.NewNumericDate(now),
        ExpiresAt: jwt.NewNumericDate(now.Add(a.RefreshTTL)),
        Subject:   user.ID,
        ID:        jti,
    }
    rt := jwt.NewWithClaims(jwt.SigningMethodHS256, rcl)
    rtStr, err := rt.SignedString([]byte(a.RefreshSecret))
    if err != nil {
        return
    }
    refresh = tokenPair{Token: rtStr, JTI: jti}

    rec := models.RefreshToken{
        TokenID:   jti,
        UserIDRef: user.ID,
        TokenHash: utils.SHA256Hex(rtStr),
        ExpiresAt: now.Add(a.RefreshTTL),
    }
    if err = a.DB.Create(&rec).Error; err != nil {
        return
    }
    return
}

type refreshRequest struct {
    RefreshToken string `json:"refresh_token" binding:"required"`
}

func (a *AuthController) Refresh(c *gin.Context) {
    var req refreshRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    tok, err := jwt.ParseWithClaims(req.RefreshToken, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
        return []byte(a.RefreshSecret), nil
    })
    if err != nil || !tok.Valid {
        c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
        return
    }

    var rec models.RefreshToken
    if err := a.DB.Where("token_hash = ?", utils.SHA256Hex(req.RefreshToken)).First(&rec).Error; err != nil {
        c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token not found"})
        return
    }
    if rec.RevokedAt != nil || time.Now().UTC().After(rec.ExpiresAt) {
        c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token expired or revoked"})
        return
    }

    var user models.User
    if err := a.DB.Where("id = ? AND active = ?", rec.UserIDRef, true).First(&user).Error; err != nil {
        c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
        return
    }

    access, newRefresh, err := a.issueTokens(user)
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    now := time.Now().UTC()
    a.DB.Model(&rec).Updates(map[string]interface{}{
        "revoked_at":           &now,
        "replaced_by_token_id": newRefresh.JTI,
    })
    c.JSON(http.StatusOK, gin.H{
        "access_token":       access.Token,
        "token_type":         "Bearer",
        "expires_in":         int(a.AccessTTL.Seconds()),
        "refresh_token":      newRefresh.Token,
        "refresh_expires_in": int(a.RefreshTTL.Seconds()),
    })
}

type logoutRequest struct {
    RefreshToken string `json:"refresh_token"`
    All          bool   `json:"all"`
}

// Logout revokes refresh tokens (a specific one, or all for the caller).
// Access tokens remain valid until they expire.
func (a *AuthController) Logout(c *gin.Context) {
    var req logoutRequest
    _ = c.ShouldBindJSON(&req)

    if req.RefreshToken != "" {
        var rec models.RefreshToken
        if err := a.DB.Where("token_hash = ?", utils.SHA256Hex(req.RefreshToken)).First(&rec).Error; err == nil {
            now := time.Now().UTC()
            a.DB.Model(&rec).Update("revoked_at", &now)
        }
    }
    if req.All {
        if user, ok := middleware.CurrentUser(c); ok {
            now := time.Now().UTC()
            a.DB.Model(&models.RefreshToken{}).
                Where("user_id_ref = ? AND revoked_at IS NULL", user.ID).
                Update("revoked_at", &now)
        }
    }
    c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
