package models

import (
	"time"

	"gorm.io/datatypes"
)

// Template — тело конфига с плейсхолдерами {{NAME}}.
// На момент рендера тело считается неизменяемым.
type Template struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	DeviceTypeID uint      `gorm:"index;not null;uniqueIndex:tpl_type_name,priority:1" json:"device_type_id"`
	Name         string    `gorm:"size:255;not null;uniqueIndex:tpl_type_name,priority:2" json:"name"`
	Category     string    `gorm:"size:128" json:"category"`
	Description  string    `gorm:"size:1024" json:"description"`
	Body         string    `gorm:"type:text;not null" json:"body"`
	IsDefault    bool      `gorm:"not null" json:"is_default"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// VariableOption — элемент списка значений select/radio/multiselect.
type VariableOption struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// VariableDefinition — описание переменной шаблона.
// TemplateID == nil — глобальная область (видна всем шаблонам).
type VariableDefinition struct {
	ID           uint                                `gorm:"primaryKey" json:"id"`
	TemplateID   *uint                               `gorm:"index;uniqueIndex:var_scope_name,priority:1" json:"template_id,omitempty"`
	Name         string                              `gorm:"size:128;not null;uniqueIndex:var_scope_name,priority:2" json:"name"`
	Label        string                              `gorm:"size:255" json:"label"`
	Type         string                              `gorm:"size:32;not null" json:"type"`
	Required     bool                                `gorm:"not null" json:"required"`
	DefaultValue string                              `gorm:"type:text" json:"default_value"`
	MinValue     *float64                            `json:"min_value,omitempty"`
	MaxValue     *float64                            `json:"max_value,omitempty"`
	Pattern      string                              `gorm:"size:512" json:"pattern,omitempty"`
	Options      datatypes.JSONSlice[VariableOption] `json:"options,omitempty"`
	HelpText     string                              `gorm:"size:1024" json:"help_text,omitempty"`
	DisplayOrder int                                 `gorm:"not null" json:"display_order"`
}

// GlobalVariable — плоская пара имя/значение, последний источник перед пустой строкой.
type GlobalVariable struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Value string `gorm:"type:text" json:"value"`
}
