package repo

import (
	"context"

	"gorm.io/gorm"

	"phoneprov/internal/models"
)

// DeviceStore — чтение устройств и типов устройств. Создание — в админке (вне ядра).
type DeviceStore struct{ db *gorm.DB }

func NewDeviceStore(db *gorm.DB) *DeviceStore { return &DeviceStore{db: db} }

func (s *DeviceStore) GetByID(ctx context.Context, id uint) (*models.Device, error) {
	var d models.Device
	if err := s.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, wrap("get device", err)
	}
	return &d, nil
}

// GetByMAC ищет по каноническому MAC (AA:BB:CC:DD:EE:FF). Нормализация — на вызывающем.
func (s *DeviceStore) GetByMAC(ctx context.Context, mac string) (*models.Device, error) {
	var d models.Device
	if err := s.db.WithContext(ctx).Where("mac_address = ?", mac).First(&d).Error; err != nil {
		return nil, wrap("get device by mac", err)
	}
	return &d, nil
}

func (s *DeviceStore) GetDeviceType(ctx context.Context, id uint) (*models.DeviceType, error) {
	var t models.DeviceType
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, wrap("get device type", err)
	}
	return &t, nil
}

func (s *DeviceStore) ListDeviceTypes(ctx context.Context) ([]models.DeviceType, error) {
	var out []models.DeviceType
	if err := s.db.WithContext(ctx).Order("name asc, id asc").Find(&out).Error; err != nil {
		return nil, wrap("list device types", err)
	}
	return out, nil
}
