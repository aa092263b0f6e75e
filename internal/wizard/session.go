// Package wizard — пошаговый мастер создания конфига устройства:
// тип → шаблон → переменные → предпросмотр и назначение → готово.
package wizard

import (
	"crypto/rand"
	"encoding/hex"

	"phoneprov/internal/variables"
)

const (
	StepSelectType     = 1
	StepSelectTemplate = 2
	StepSetVariables   = 3
	StepPreview        = 4
	StepComplete       = 5
)

// Session — всё состояние мастера одного браузера. Передаётся явно через
// каждый вызов и хранится в Store; глобального состояния нет.
type Session struct {
	Step int `json:"step"`

	// Привязанное устройство; его тип — подтверждаемый выбор шага 1.
	DeviceID    *uint `json:"device_id,omitempty"`
	BoundTypeID uint  `json:"bound_type_id,omitempty"`

	DeviceTypeID uint             `json:"device_type_id,omitempty"`
	TemplateID   uint             `json:"template_id,omitempty"`
	Variables    variables.Values `json:"variables,omitempty"`
	VariablesSet bool             `json:"variables_set,omitempty"`

	// Итог коммита.
	TargetID         uint  `json:"target_id,omitempty"`
	ConfigVersionID  uint  `json:"config_version_id,omitempty"`
	VersionNumber    int   `json:"version_number,omitempty"`
	AssignedDeviceID *uint `json:"assigned_device_id,omitempty"`

	CSRFToken string `json:"csrf_token"`
}

func NewSession() *Session {
	return &Session{Step: StepSelectType, CSRFToken: newToken()}
}

// Reset очищает всё, кроме CSRF-токена.
func (s *Session) Reset() {
	token := s.CSRFToken
	*s = Session{Step: StepSelectType, CSRFToken: token}
	if s.CSRFToken == "" {
		s.CSRFToken = newToken()
	}
}

// MaxStep — самый дальний шаг, для которого собраны данные.
func (s *Session) MaxStep() int {
	switch {
	case s.ConfigVersionID != 0:
		return StepComplete
	case s.VariablesSet:
		return StepPreview
	case s.TemplateID != 0:
		return StepSetVariables
	case s.DeviceTypeID != 0:
		return StepSelectTemplate
	default:
		return StepSelectType
	}
}

// ClampStep — запрошенный шаг в пределах 1..5 и не дальше собранных данных.
func (s *Session) ClampStep(step int) int {
	if step < StepSelectType {
		step = StepSelectType
	}
	if step > StepComplete {
		step = StepComplete
	}
	if m := s.MaxStep(); step > m {
		step = m
	}
	return step
}

// clearAfterType — смена типа обнуляет всё, что от него зависит.
func (s *Session) clearAfterType() {
	s.TemplateID = 0
	s.clearAfterTemplate()
}

func (s *Session) clearAfterTemplate() {
	s.Variables = nil
	s.VariablesSet = false
	s.clearResult()
}

func (s *Session) clearResult() {
	s.TargetID = 0
	s.ConfigVersionID = 0
	s.VersionNumber = 0
	s.AssignedDeviceID = nil
}

func newToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
