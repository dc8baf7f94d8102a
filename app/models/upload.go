package models

import "time"

const (
	UploadStatusImported   = "imported"
	UploadStatusBilled     = "billed"
	UploadStatusReconciled = "reconciled"
)

// Upload is one imported debtor batch. The CSV pipeline creates it; the
// reconciliation core uses it only as a scope key for bulk runs and stats.
type Upload struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Filename     string    `gorm:"type:varchar(255);not null" json:"filename"`
	Status       string    `gorm:"type:varchar(20);not null;default:'imported'" json:"status"`
	RowsTotal    int       `gorm:"not null;default:0" json:"rows_total"`
	RowsImported int       `gorm:"not null;default:0" json:"rows_imported"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
