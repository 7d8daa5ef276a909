package models

import "time"

// RefreshToken is one link in a user's refresh chain. Rows are kept after
// revocation so a replayed token can be traced to its replacement.
type RefreshToken struct {
    ID                uint   `gorm:"primaryKey"`
    TokenID           string `gorm:"index"` // jti
    UserIDRef         string `gorm:"type:uuid;index"`
    TokenHash         string `gorm:"uniqueIndex"`
    ExpiresAt         time.Time `gorm:"index"`
    RevokedAt         *time.Time
    ReplacedByTokenID *string
    CreatedAt         time.Time
}
