package repository

import (
	"gorm.io/gorm"

	"github.com/WebOleg/Laravel-start-te-sub000/app/models"
)

type uploadRepository struct {
	db *gorm.DB
}

// NewUploadRepository creates an upload repository backed by GORM.
func NewUploadRepository(db *gorm.DB) UploadRepository {
	return &uploadRepository{db: db}
}

func (r *uploadRepository) GetByID(id uint) (*models.Upload, error) {
	var upload models.Upload
	if err := r.db.First(&upload, id).Error; err != nil {
		return nil, err
	}
	return &upload, nil
}
