package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"phoneprov/internal/models"
)

// ProvisioningLogStore — журнал обращений телефонов и счётчики загрузок версий.
type ProvisioningLogStore struct{ db *gorm.DB }

func NewProvisioningLogStore(db *gorm.DB) *ProvisioningLogStore {
	return &ProvisioningLogStore{db: db}
}

func (s *ProvisioningLogStore) Record(ctx context.Context, e *models.ProvisioningLog) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return wrap("record provisioning log", err)
	}
	return nil
}

// ListForDevice — последние записи устройства, от новой к старой.
func (s *ProvisioningLogStore) ListForDevice(ctx context.Context, deviceID uint, limit int) ([]models.ProvisioningLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.ProvisioningLog
	if err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, wrap("list provisioning log", err)
	}
	return out, nil
}

// CountByVersion — число загрузок контента по каждой версии.
func (s *ProvisioningLogStore) CountByVersion(ctx context.Context, versionIDs []uint) (map[uint]int64, error) {
	out := make(map[uint]int64, len(versionIDs))
	if len(versionIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ConfigVersionID uint
		N               int64
	}
	if err := s.db.WithContext(ctx).Model(&models.ProvisioningLog{}).
		Select("config_version_id, COUNT(*) AS n").
		Where("config_version_id IN ?", versionIDs).
		Group("config_version_id").
		Scan(&rows).Error; err != nil {
		return nil, wrap("count downloads", err)
	}
	for _, r := range rows {
		out[r.ConfigVersionID] = r.N
	}
	return out, nil
}

// PurgeOlderThan удаляет записи старше cutoff.
func (s *ProvisioningLogStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.ProvisioningLog{})
	if res.Error != nil {
		return 0, wrap("purge provisioning log", res.Error)
	}
	return res.RowsAffected, nil
}
