// Package versions — история версий конфигураций: просмотр, откат и
// ручное назначение устройству.
package versions

import (
	"context"

	"github.com/sirupsen/logrus"

	"phoneprov/internal/audit"
	"phoneprov/internal/logs"
	"phoneprov/internal/metrics"
	"phoneprov/internal/models"
	"phoneprov/internal/repo"
)

type Store interface {
	Get(ctx context.Context, id uint) (*models.ConfigVersion, error)
	Active(ctx context.Context, scope repo.Scope) (*models.ConfigVersion, error)
	ListVersions(ctx context.Context, scope repo.Scope) ([]repo.VersionView, error)
	Rollback(ctx context.Context, versionID uint, author string) (*models.ConfigVersion, error)
	Assign(ctx context.Context, deviceID, versionID uint, author string) (*models.DeviceConfigAssignment, error)
}

type DeviceLog interface {
	ListForDevice(ctx context.Context, deviceID uint, limit int) ([]models.ProvisioningLog, error)
}

type Service struct {
	store Store
	logs  DeviceLog
	audit audit.Recorder
	log   *logrus.Entry
}

func NewService(store Store, deviceLog DeviceLog, a audit.Recorder) *Service {
	return &Service{
		store: store,
		logs:  deviceLog,
		audit: audit.NewBestEffort(a),
		log:   logs.Component("versions"),
	}
}

func (s *Service) List(ctx context.Context, scope repo.Scope) ([]repo.VersionView, error) {
	return s.store.ListVersions(ctx, scope)
}

func (s *Service) Get(ctx context.Context, id uint) (*models.ConfigVersion, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Active(ctx context.Context, scope repo.Scope) (*models.ConfigVersion, error) {
	return s.store.Active(ctx, scope)
}

// Rollback создаёт новую активную версию с содержимым versionID.
func (s *Service) Rollback(ctx context.Context, versionID uint, actor string) (*models.ConfigVersion, error) {
	v, err := s.store.Rollback(ctx, versionID, actor)
	if err != nil {
		return nil, err
	}
	metrics.VersionCreated()
	s.log.WithFields(logrus.Fields{
		"actor":   actor,
		"from":    versionID,
		"version": v.VersionNumber,
		"scope":   repo.Scope{TargetID: v.TargetID, DeviceTypeID: v.DeviceTypeID}.String(),
	}).Info("config version rolled back")

	_ = s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     "config_version.rollback",
		EntityType: "config_version",
		EntityID:   v.ID,
		OldValue:   map[string]any{"config_version_id": versionID},
		NewValue:   map[string]any{"version_number": v.VersionNumber, "target_id": v.TargetID, "device_type_id": v.DeviceTypeID},
	})
	return v, nil
}

func (s *Service) Assign(ctx context.Context, deviceID, versionID uint, actor string) (*models.DeviceConfigAssignment, error) {
	a, err := s.store.Assign(ctx, deviceID, versionID, actor)
	if err != nil {
		return nil, err
	}
	_ = s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     "device_config.assign",
		EntityType: "device",
		EntityID:   deviceID,
		NewValue:   map[string]any{"config_version_id": versionID},
	})
	return a, nil
}

// DeviceLog — последние обращения телефона.
func (s *Service) DeviceLog(ctx context.Context, deviceID uint, limit int) ([]models.ProvisioningLog, error) {
	return s.logs.ListForDevice(ctx, deviceID, limit)
}
