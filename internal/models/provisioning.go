package models

import "time"

// Стадии протокола провижининга, как они пишутся в журнал.
const (
	StageBoot         = "boot"
	StageCertificates = "certificates"
	StageStaging      = "staging_config"
	StageConfig       = "config"
)

// ProvisioningLog — append-only журнал обращений телефонов.
// ConfigVersionID заполняется, когда отдан контент версии (счётчик загрузок).
type ProvisioningLog struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	DeviceID        uint      `gorm:"index;not null" json:"device_id"`
	MACAddress      string    `gorm:"size:17;not null" json:"mac_address"`
	Stage           string    `gorm:"size:32;not null" json:"stage"`
	SourceAddress   string    `gorm:"size:64" json:"source_address"`
	ClientID        string    `gorm:"size:255" json:"client_id"`
	ConfigVersionID *uint     `gorm:"index" json:"config_version_id,omitempty"`
	CreatedAt       time.Time `gorm:"index" json:"created_at"`
}
