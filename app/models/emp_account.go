package models

import "time"

// EmpAccount holds one set of EMP gateway credentials for one merchant
// account. Managed by operators elsewhere; read-only to the reconciliation
// core.
type EmpAccount struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(100);not null" json:"name"`
	Username    string    `gorm:"type:varchar(100);not null" json:"-"`
	PasswordEnc string    `gorm:"type:varchar(255);not null" json:"-"`
	BaseURL     string    `gorm:"type:varchar(255);not null" json:"-"`
	Active      bool      `gorm:"not null;default:true;index" json:"active"`
	SortOrder   int       `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
