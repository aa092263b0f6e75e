package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"phoneprov/internal/models"
)

// Scope — область нумерации версий.
type Scope struct {
	TargetID     uint
	DeviceTypeID uint
}

func (s Scope) String() string { return fmt.Sprintf("target=%d device_type=%d", s.TargetID, s.DeviceTypeID) }

// UsageCounter — внешний счётчик загрузок версий.
type UsageCounter interface {
	CountByVersion(ctx context.Context, versionIDs []uint) (map[uint]int64, error)
}

// VersionView — версия с числом загрузок, для списка истории.
type VersionView struct {
	models.ConfigVersion
	Downloads int64 `json:"downloads"`
}

// VersionStore — append-only журнал версий с одной активной версией на область.
type VersionStore struct {
	db    *gorm.DB
	usage UsageCounter
	now   func() time.Time
}

func NewVersionStore(db *gorm.DB, usage UsageCounter) *VersionStore {
	return &VersionStore{db: db, usage: usage, now: time.Now}
}

// CreateVersion — номер = 1 + max в области; прежние версии деактивируются
// в той же транзакции.
func (s *VersionStore) CreateVersion(ctx context.Context, scope Scope, content, changelog, author string) (*models.ConfigVersion, error) {
	var out *models.ConfigVersion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := s.createInTx(tx, scope, nil, content, changelog, author)
		out = v
		return err
	})
	if err != nil {
		return nil, wrap("create config version", err)
	}
	return out, nil
}

// CommitAndAssign создаёт версию и, если deviceID задан, привязывает её к
// устройству — всё одной транзакцией, без осиротевших привязок. templateID
// помечает шаблон использованным.
func (s *VersionStore) CommitAndAssign(ctx context.Context, scope Scope, templateID *uint, content, changelog, author string, deviceID *uint) (*models.ConfigVersion, *models.DeviceConfigAssignment, error) {
	var (
		ver *models.ConfigVersion
		asg *models.DeviceConfigAssignment
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v, err := s.createInTx(tx, scope, templateID, content, changelog, author)
		if err != nil {
			return err
		}
		ver = v
		if deviceID == nil {
			return nil
		}
		asg, err = s.assignInTx(tx, *deviceID, v.ID, author)
		return err
	})
	if err != nil {
		return nil, nil, wrap("commit config version", err)
	}
	return ver, asg, nil
}

func (s *VersionStore) createInTx(tx *gorm.DB, scope Scope, templateID *uint, content, changelog, author string) (*models.ConfigVersion, error) {
	seq := models.ConfigVersionScope{TargetID: scope.TargetID, DeviceTypeID: scope.DeviceTypeID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
		return nil, fmt.Errorf("ensure scope row: %w", err)
	}
	// Блокировка строки области сериализует создателей одной области;
	// разные области не пересекаются.
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("target_id = ? AND device_type_id = ?", scope.TargetID, scope.DeviceTypeID).
		First(&seq).Error; err != nil {
		return nil, fmt.Errorf("lock scope row: %w", err)
	}

	var maxNum int
	if err := tx.Model(&models.ConfigVersion{}).
		Where("target_id = ? AND device_type_id = ?", scope.TargetID, scope.DeviceTypeID).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&maxNum).Error; err != nil {
		return nil, fmt.Errorf("max version: %w", err)
	}
	if seq.LastVersion > maxNum {
		maxNum = seq.LastVersion
	}
	next := maxNum + 1

	if err := tx.Model(&models.ConfigVersion{}).
		Where("target_id = ? AND device_type_id = ? AND is_active = ?", scope.TargetID, scope.DeviceTypeID, true).
		Update("is_active", false).Error; err != nil {
		return nil, fmt.Errorf("deactivate versions: %w", err)
	}

	v := &models.ConfigVersion{
		TargetID:      scope.TargetID,
		DeviceTypeID:  scope.DeviceTypeID,
		VersionNumber: next,
		Content:       content,
		TemplateID:    templateID,
		Changelog:     changelog,
		CreatedBy:     author,
		CreatedAt:     s.now().UTC(),
		IsActive:      true,
	}
	if err := tx.Create(v).Error; err != nil {
		return nil, fmt.Errorf("insert version: %w", err)
	}
	if err := tx.Model(&models.ConfigVersionScope{}).
		Where("target_id = ? AND device_type_id = ?", scope.TargetID, scope.DeviceTypeID).
		Update("last_version", next).Error; err != nil {
		return nil, fmt.Errorf("advance scope: %w", err)
	}
	return v, nil
}

// Rollback — всегда новая версия с содержимым целевой; старая строка не трогается.
func (s *VersionStore) Rollback(ctx context.Context, versionID uint, author string) (*models.ConfigVersion, error) {
	var out *models.ConfigVersion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target models.ConfigVersion
		if err := tx.First(&target, versionID).Error; err != nil {
			return err
		}
		v, err := s.createInTx(tx,
			Scope{TargetID: target.TargetID, DeviceTypeID: target.DeviceTypeID},
			target.TemplateID,
			target.Content,
			fmt.Sprintf("Rollback to version %d", target.VersionNumber),
			author)
		out = v
		return err
	})
	if err != nil {
		return nil, wrap("rollback config version", err)
	}
	return out, nil
}

func (s *VersionStore) Get(ctx context.Context, id uint) (*models.ConfigVersion, error) {
	var v models.ConfigVersion
	if err := s.db.WithContext(ctx).First(&v, id).Error; err != nil {
		return nil, wrap("get config version", err)
	}
	return &v, nil
}

func (s *VersionStore) Active(ctx context.Context, scope Scope) (*models.ConfigVersion, error) {
	var v models.ConfigVersion
	if err := s.db.WithContext(ctx).
		Where("target_id = ? AND device_type_id = ? AND is_active = ?", scope.TargetID, scope.DeviceTypeID, true).
		First(&v).Error; err != nil {
		return nil, wrap("get active version", err)
	}
	return &v, nil
}

// ListVersions — от новой к старой, с числом загрузок.
func (s *VersionStore) ListVersions(ctx context.Context, scope Scope) ([]VersionView, error) {
	var rows []models.ConfigVersion
	if err := s.db.WithContext(ctx).
		Where("target_id = ? AND device_type_id = ?", scope.TargetID, scope.DeviceTypeID).
		Order("version_number desc").
		Find(&rows).Error; err != nil {
		return nil, wrap("list versions", err)
	}
	ids := make([]uint, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	counts := map[uint]int64{}
	if s.usage != nil && len(ids) > 0 {
		c, err := s.usage.CountByVersion(ctx, ids)
		if err != nil {
			return nil, wrap("count downloads", err)
		}
		counts = c
	}
	out := make([]VersionView, len(rows))
	for i, r := range rows {
		out[i] = VersionView{ConfigVersion: r, Downloads: counts[r.ID]}
	}
	return out, nil
}

// Assign — upsert по устройству: последняя запись выигрывает.
func (s *VersionStore) Assign(ctx context.Context, deviceID, versionID uint, author string) (*models.DeviceConfigAssignment, error) {
	var out *models.DeviceConfigAssignment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&models.ConfigVersion{}, versionID).Error; err != nil {
			return err
		}
		a, err := s.assignInTx(tx, deviceID, versionID, author)
		out = a
		return err
	})
	if err != nil {
		return nil, wrap("assign config version", err)
	}
	return out, nil
}

func (s *VersionStore) assignInTx(tx *gorm.DB, deviceID, versionID uint, author string) (*models.DeviceConfigAssignment, error) {
	if err := tx.First(&models.Device{}, deviceID).Error; err != nil {
		return nil, err
	}
	now := s.now().UTC()
	a := models.DeviceConfigAssignment{
		DeviceID:        deviceID,
		ConfigVersionID: versionID,
		AssignedBy:      author,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"config_version_id", "assigned_by", "updated_at"}),
	}).Create(&a).Error; err != nil {
		return nil, fmt.Errorf("upsert assignment: %w", err)
	}
	var got models.DeviceConfigAssignment
	if err := tx.Where("device_id = ?", deviceID).First(&got).Error; err != nil {
		return nil, fmt.Errorf("reload assignment: %w", err)
	}
	return &got, nil
}

// AssignmentForDevice — привязка устройства и её версия.
func (s *VersionStore) AssignmentForDevice(ctx context.Context, deviceID uint) (*models.DeviceConfigAssignment, *models.ConfigVersion, error) {
	db := s.db.WithContext(ctx)
	var a models.DeviceConfigAssignment
	if err := db.Where("device_id = ?", deviceID).First(&a).Error; err != nil {
		return nil, nil, wrap("get assignment", err)
	}
	var v models.ConfigVersion
	if err := db.First(&v, a.ConfigVersionID).Error; err != nil {
		return nil, nil, wrap("get assigned version", err)
	}
	return &a, &v, nil
}

// Prune — чистка по сроку хранения: в каждой области остаются keep последних
// версий; активная и привязанные к устройствам не удаляются никогда.
func (s *VersionStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	db := s.db.WithContext(ctx)
	var scopes []models.ConfigVersionScope
	if err := db.Find(&scopes).Error; err != nil {
		return 0, wrap("list scopes", err)
	}
	var total int64
	for _, sc := range scopes {
		cutoff := sc.LastVersion - keep
		if cutoff < 1 {
			continue
		}
		res := db.
			Where("target_id = ? AND device_type_id = ?", sc.TargetID, sc.DeviceTypeID).
			Where("version_number <= ? AND is_active = ?", cutoff, false).
			Where("id NOT IN (?)", db.Model(&models.DeviceConfigAssignment{}).Select("config_version_id")).
			Delete(&models.ConfigVersion{})
		if res.Error != nil {
			return total, wrap("prune versions", res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}
