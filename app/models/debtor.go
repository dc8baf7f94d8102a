package models

import "time"

// Debtor is the person being billed. The import pipeline owns these rows;
// the reconciliation core only references them from billing attempts.
type Debtor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Reference string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"reference"`
	Name      string    `gorm:"type:varchar(200)" json:"name"`
	IBAN      string    `gorm:"type:varchar(34)" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
