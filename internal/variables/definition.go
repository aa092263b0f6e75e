package variables

import (
	"fmt"
	"strings"

	"phoneprov/internal/models"
)

type Option = models.VariableOption

// Definition — описание переменной в том виде, в каком его видят валидатор и резолвер.
type Definition struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Kind     Kind     `json:"kind"`
	Required bool     `json:"required"`
	Default  string   `json:"default,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Pattern  string   `json:"pattern,omitempty"`
	Options  []Option `json:"options,omitempty"`
	Help     string   `json:"help,omitempty"`
	Order    int      `json:"order"`

	global bool
}

func FromModel(m models.VariableDefinition) (Definition, error) {
	k, err := ParseKind(m.Type)
	if err != nil {
		return Definition{}, fmt.Errorf("variable %s: %w", m.Name, err)
	}
	label := m.Label
	if label == "" {
		label = m.Name
	}
	return Definition{
		Name:     m.Name,
		Label:    label,
		Kind:     k,
		Required: m.Required,
		Default:  m.DefaultValue,
		Min:      m.MinValue,
		Max:      m.MaxValue,
		Pattern:  m.Pattern,
		Options:  []Option(m.Options),
		Help:     m.HelpText,
		Order:    m.DisplayOrder,
		global:   m.TemplateID == nil,
	}, nil
}

// FromModels переводит строки БД в определения; определение шаблона
// перекрывает глобальное с тем же именем. Порядок — как пришёл из хранилища.
func FromModels(rows []models.VariableDefinition) ([]Definition, error) {
	out := make([]Definition, 0, len(rows))
	idx := make(map[string]int, len(rows))
	for _, r := range rows {
		d, err := FromModel(r)
		if err != nil {
			return nil, err
		}
		if i, ok := idx[d.Name]; ok {
			if out[i].global && !d.global {
				out[i] = d
			}
			continue
		}
		idx[d.Name] = len(out)
		out = append(out, d)
	}
	return out, nil
}

// HasOption — сравнение по value, не по label.
func (d Definition) HasOption(v string) bool {
	for _, o := range d.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

// Serialize приводит сырой ввод формы к скалярной строке:
// списочные типы склеиваются через запятую, остальные берут последнее значение.
func (d Definition) Serialize(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	if d.Kind.IsList() {
		parts := make([]string, 0, len(vals))
		for _, v := range vals {
			if v = strings.TrimSpace(v); v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, ",")
	}
	return vals[len(vals)-1]
}

// SplitList — обратная операция для списочных типов.
func SplitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
