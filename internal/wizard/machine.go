package wizard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"phoneprov/internal/audit"
	"phoneprov/internal/logs"
	"phoneprov/internal/metrics"
	"phoneprov/internal/models"
	"phoneprov/internal/render/placeholder"
	"phoneprov/internal/repo"
	"phoneprov/internal/variables"
)

var (
	// ErrStep — действие недоступно на текущем шаге.
	ErrStep = errors.New("action not allowed at this step")
	// ErrNoTarget — коммит без выбранного клиента закрыт.
	ErrNoTarget = errors.New("no target selected")
)

// TargetDefault — значение target_id для корзины без клиента.
const TargetDefault = "default"

type Devices interface {
	GetByID(ctx context.Context, id uint) (*models.Device, error)
	GetDeviceType(ctx context.Context, id uint) (*models.DeviceType, error)
	ListDeviceTypes(ctx context.Context) ([]models.DeviceType, error)
}

type Templates interface {
	ListForDeviceType(ctx context.Context, deviceTypeID uint) ([]models.Template, error)
	Get(ctx context.Context, id uint) (*models.Template, error)
}

type Resolver interface {
	Definitions(ctx context.Context, templateID uint) ([]variables.Definition, error)
	Resolve(ctx context.Context, templateID uint, values variables.Values) (map[string]string, error)
}

type Targets interface {
	Get(ctx context.Context, id uint) (*models.Target, error)
	List(ctx context.Context) ([]models.Target, error)
	EnsureDefault(ctx context.Context) (*models.Target, error)
}

type Versions interface {
	CommitAndAssign(ctx context.Context, scope repo.Scope, templateID *uint, content, changelog, author string, deviceID *uint) (*models.ConfigVersion, *models.DeviceConfigAssignment, error)
}

// Machine — переходы мастера. Сама сессия не хранится: её передают и сохраняют снаружи.
type Machine struct {
	devices   Devices
	templates Templates
	resolver  Resolver
	targets   Targets
	versions  Versions
	audit     audit.Recorder
	log       *logrus.Entry
}

func NewMachine(d Devices, t Templates, r Resolver, tg Targets, v Versions, a audit.Recorder) *Machine {
	return &Machine{
		devices:   d,
		templates: t,
		resolver:  r,
		targets:   tg,
		versions:  v,
		audit:     audit.NewBestEffort(a),
		log:       logs.Component("wizard"),
	}
}

// BindDevice — смена устройства сбрасывает всю сессию; ответы не смешиваются.
func (m *Machine) BindDevice(ctx context.Context, s *Session, deviceID uint) error {
	if s.DeviceID != nil && *s.DeviceID == deviceID {
		return nil
	}
	dev, err := m.devices.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	s.Reset()
	id := dev.ID
	s.DeviceID = &id
	s.BoundTypeID = dev.DeviceTypeID
	return nil
}

// SelectType: при привязанном устройстве тип только подтверждается.
func (m *Machine) SelectType(ctx context.Context, s *Session, deviceTypeID uint) error {
	if s.BoundTypeID != 0 {
		if deviceTypeID == 0 {
			deviceTypeID = s.BoundTypeID
		}
		if deviceTypeID != s.BoundTypeID {
			return fieldError("device_type_id", variables.ReasonOption, "device type is fixed by the selected device")
		}
	}
	if deviceTypeID == 0 {
		return fieldError("device_type_id", variables.ReasonRequired, "select a device type")
	}
	if _, err := m.devices.GetDeviceType(ctx, deviceTypeID); err != nil {
		return err
	}
	if s.DeviceTypeID != deviceTypeID {
		s.DeviceTypeID = deviceTypeID
		s.clearAfterType()
	}
	s.clearResult()
	s.Step = StepSelectTemplate
	return nil
}

// TemplateChoices — шаблоны типа и предвыбранный (текущий или default).
func (m *Machine) TemplateChoices(ctx context.Context, s *Session) ([]models.Template, uint, error) {
	if s.DeviceTypeID == 0 {
		return nil, 0, ErrStep
	}
	tpls, err := m.templates.ListForDeviceType(ctx, s.DeviceTypeID)
	if err != nil {
		return nil, 0, err
	}
	selected := s.TemplateID
	if selected == 0 {
		for _, t := range tpls {
			if t.IsDefault {
				selected = t.ID
				break
			}
		}
	}
	return tpls, selected, nil
}

func (m *Machine) SelectTemplate(ctx context.Context, s *Session, templateID uint) error {
	if s.DeviceTypeID == 0 {
		return ErrStep
	}
	if templateID == 0 {
		return fieldError("template_id", variables.ReasonRequired, "select a template")
	}
	tpl, err := m.templates.Get(ctx, templateID)
	if err != nil {
		return err
	}
	if tpl.DeviceTypeID != s.DeviceTypeID || !tpl.IsActive {
		return fieldError("template_id", variables.ReasonOption, "template is not available for this device type")
	}
	if s.TemplateID != templateID {
		s.TemplateID = templateID
		s.clearAfterTemplate()
	}
	s.clearResult()
	s.Step = StepSetVariables
	return nil
}

// Definitions — поля формы шага 3.
func (m *Machine) Definitions(ctx context.Context, s *Session) ([]variables.Definition, error) {
	if s.TemplateID == 0 {
		return nil, ErrStep
	}
	return m.resolver.Definitions(ctx, s.TemplateID)
}

// SetVariables берёт только определённые шаблоном имена и проверяет каждое.
// Ошибка любой переменной блокирует переход; введённое сохраняется для формы.
func (m *Machine) SetVariables(ctx context.Context, s *Session, raw variables.Values) error {
	if s.TemplateID == 0 {
		return ErrStep
	}
	defs, err := m.resolver.Definitions(ctx, s.TemplateID)
	if err != nil {
		return err
	}
	vals := make(variables.Values, len(defs))
	for _, d := range defs {
		if v, ok := raw[d.Name]; ok {
			vals[d.Name] = append([]string(nil), v...)
		}
	}
	s.Variables = vals
	s.clearResult()
	if errs := variables.ValidateValues(defs, vals); errs != nil {
		s.VariablesSet = false
		s.Step = StepSetVariables
		return errs
	}
	s.VariablesSet = true
	s.Step = StepPreview
	return nil
}

// Preview — итоговый текст конфига для текущих ответов.
func (m *Machine) Preview(ctx context.Context, s *Session) (string, error) {
	if !s.VariablesSet {
		return "", ErrStep
	}
	return m.render(ctx, s)
}

func (m *Machine) render(ctx context.Context, s *Session) (string, error) {
	defer metrics.ObserveRender(time.Now())
	tpl, err := m.templates.Get(ctx, s.TemplateID)
	if err != nil {
		return "", err
	}
	vars, err := m.resolver.Resolve(ctx, s.TemplateID, s.Variables)
	if err != nil {
		return "", err
	}
	return placeholder.Render(tpl.Body, vars)
}

// TargetChoices — клиенты для шага 4.
func (m *Machine) TargetChoices(ctx context.Context) ([]models.Target, error) {
	return m.targets.List(ctx)
}

// Commit рендерит и сохраняет версию, при привязанном устройстве назначает её.
// При любой ошибке сессия остаётся на шаге 4 с собранными данными.
func (m *Machine) Commit(ctx context.Context, s *Session, actor, targetRaw string) error {
	if !s.VariablesSet {
		return ErrStep
	}
	target, err := m.resolveTarget(ctx, targetRaw)
	if err != nil {
		return err
	}
	content, err := m.render(ctx, s)
	if err != nil {
		return err
	}
	tpl, err := m.templates.Get(ctx, s.TemplateID)
	if err != nil {
		return err
	}

	scope := repo.Scope{TargetID: target.ID, DeviceTypeID: s.DeviceTypeID}
	changelog := fmt.Sprintf("Generated from template %q", tpl.Name)
	ver, asg, err := m.versions.CommitAndAssign(ctx, scope, &tpl.ID, content, changelog, actor, s.DeviceID)
	if err != nil {
		m.log.WithError(err).WithFields(logrus.Fields{
			"actor":  actor,
			"scope":  scope.String(),
			"device": deviceField(s.DeviceID),
		}).Error("wizard commit failed")
		s.Step = StepPreview
		return err
	}
	metrics.VersionCreated()

	s.TargetID = target.ID
	s.ConfigVersionID = ver.ID
	s.VersionNumber = ver.VersionNumber
	s.AssignedDeviceID = nil
	if asg != nil {
		id := asg.DeviceID
		s.AssignedDeviceID = &id
	}
	s.Step = StepComplete

	_ = m.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     "config_version.create",
		EntityType: "config_version",
		EntityID:   ver.ID,
		NewValue:   map[string]any{"version_number": ver.VersionNumber, "target_id": target.ID, "device_type_id": s.DeviceTypeID},
	})
	if asg != nil {
		_ = m.audit.Record(ctx, audit.Entry{
			Actor:      actor,
			Action:     "device_config.assign",
			EntityType: "device",
			EntityID:   asg.DeviceID,
			NewValue:   map[string]any{"config_version_id": ver.ID},
		})
	}
	return nil
}

func (m *Machine) resolveTarget(ctx context.Context, raw string) (*models.Target, error) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "":
		return nil, ErrNoTarget
	case TargetDefault:
		return m.targets.EnsureDefault(ctx)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return nil, fieldError("target_id", variables.ReasonOption, "unknown target")
	}
	return m.targets.Get(ctx, uint(id))
}

func deviceField(id *uint) any {
	if id == nil {
		return nil
	}
	return *id
}

func fieldError(field string, reason variables.Reason, msg string) variables.ValidationErrors {
	return variables.ValidationErrors{field: {Field: field, Reason: reason, Message: msg}}
}
