package models

import (
	"time"
)

// DeviceType — семейство моделей телефонов (справочник).
type DeviceType struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Description string    `gorm:"size:1024" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Device — физический аппарат. MACAddress хранится в каноническом виде AA:BB:CC:DD:EE:FF.
type Device struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Name         string    `gorm:"size:255" json:"name"`
	MACAddress   string    `gorm:"uniqueIndex;size:17;not null" json:"mac_address"`
	DeviceTypeID uint      `gorm:"index;not null" json:"device_type_id"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	CustomerID   *uint     `gorm:"index" json:"customer_id,omitempty"`
}

// Target — группа (PABX/клиент), в рамках которой нумеруются версии конфигов.
// IsDefault помечает синтетическую корзину для конфигов без клиента.
type Target struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"uniqueIndex;size:255;not null" json:"name"`
	CustomerID *uint     `gorm:"index" json:"customer_id,omitempty"`
	IsDefault  bool      `gorm:"index;not null" json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
}

const DefaultTargetName = "default"
