package models

import "time"

// ConfigVersion — неизменяемый результат рендера. Нумерация идёт внутри
// области (TargetID, DeviceTypeID); активна ровно одна версия области.
type ConfigVersion struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TargetID      uint      `gorm:"not null;uniqueIndex:cv_scope_number,priority:1;index:cv_scope_active,priority:1" json:"target_id"`
	DeviceTypeID  uint      `gorm:"not null;uniqueIndex:cv_scope_number,priority:2;index:cv_scope_active,priority:2" json:"device_type_id"`
	VersionNumber int       `gorm:"not null;uniqueIndex:cv_scope_number,priority:3" json:"version_number"`
	TemplateID    *uint     `gorm:"index" json:"template_id,omitempty"` // nil — версия не из мастера
	Content       string    `gorm:"type:text;not null" json:"content"`
	Changelog     string    `gorm:"size:1024" json:"changelog"`
	CreatedBy     string    `gorm:"size:128" json:"created_by"`
	CreatedAt     time.Time `json:"created_at"`
	IsActive      bool      `gorm:"not null;index:cv_scope_active,priority:3" json:"is_active"`
}

// ConfigVersionScope — строка-последовательность области. Её блокировка
// (SELECT ... FOR UPDATE) сериализует конкурентные создатели одной области.
type ConfigVersionScope struct {
	TargetID     uint `gorm:"primaryKey;autoIncrement:false"`
	DeviceTypeID uint `gorm:"primaryKey;autoIncrement:false"`
	LastVersion  int  `gorm:"not null"`
}

// DeviceConfigAssignment — какая версия положена устройству. Одна на устройство.
type DeviceConfigAssignment struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	DeviceID        uint      `gorm:"uniqueIndex;not null" json:"device_id"`
	ConfigVersionID uint      `gorm:"index;not null" json:"config_version_id"`
	AssignedBy      string    `gorm:"size:128" json:"assigned_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
