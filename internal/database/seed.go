package database

import (
    "log"

    "gorm.io/gorm"

    "github.com/ucampus/attendance_backend/internal/config"
    "github.com/ucampus/attendance_backend/internal/models"
    "github.com/ucampus/attendance_backend/internal/utils"
)

func SeedAdmin(db *gorm.DB, cfg *config.Config) error {
    var count int64
    if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
        return err
    }
    if count > 0 {
        return nil
    }

    hashed, err := utils.HashPassword(cfg.AdminPassword)
    if err != nil {
        return err
    }

    admin := models.User{
        Username: cfg.AdminUsername,
        Name:     cfg.AdminFullName,
        Email:    cfg.AdminEmail,
        Password: hashed,
        Role:     models.RoleAdmin,
        Active:   true,
    }
    if err := db.Create(&admin).Error; err != nil {
        return err
    }
    log.Println("Seeded initial admin:", admin.Username)
    return nil
}

func SeedCareers(db *gorm.DB) error {
    careers := []models.Career{
        {Name: "INGENIERIA DE SISTEMAS", Code: "IS"},
        {Name: "INGENIERIA FORESTAL Y MEDIO AMBIENTE", Code: "IFMA"},
        {Name: "ADMINISTRACION Y NEGOCIOS INTERNACIONALES", Code: "ANI"},
    }
    for _, c := range careers {
        var count int64
        if err := db.Model(&models.Career{}).Where("code = ?", c.Code).Count(&count).Error; err != nil {
            return err
        }
        if count > 0 {
            continue
        }
        if err := db.Create(&c).Error; err != nil {
            return err
        }
    }
    return nil
}
