package repository

import (
	"gorm.io/gorm"

	"github.com/WebOleg/Laravel-start-te-sub000/app/models"
)

type empAccountRepository struct {
	db *gorm.DB
}

// NewEmpAccountRepository creates a gateway account repository backed by GORM.
func NewEmpAccountRepository(db *gorm.DB) EmpAccountRepository {
	return &empAccountRepository{db: db}
}

func (r *empAccountRepository) GetByID(id uint) (*models.EmpAccount, error) {
	var account models.EmpAccount
	if err := r.db.First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *empAccountRepository) ListActive() ([]models.EmpAccount, error) {
	var accounts []models.EmpAccount
	err := r.db.Where("active = ?", true).
		Order("sort_order ASC, id ASC").
		Find(&accounts).Error
	return accounts, err
}

func (r *empAccountRepository) CountActive() (int64, error) {
	var count int64
	err := r.db.Model(&models.EmpAccount{}).Where("active = ?", true).Count(&count).Error
	return count, err
}
