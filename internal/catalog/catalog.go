// Package catalog загружает справочник (типы устройств, шаблоны, переменные,
// глобальные значения) из YAML и применяет его к БД одной транзакцией.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"phoneprov/internal/logs"
	"phoneprov/internal/models"
	"phoneprov/internal/render/placeholder"
	"phoneprov/internal/variables"
)

type File struct {
	GlobalVariables []GlobalVariable `yaml:"global_variables" validate:"dive"`
	Variables       []Variable       `yaml:"variables" validate:"dive"` // глобальная область
	DeviceTypes     []DeviceType     `yaml:"device_types" validate:"dive"`
}

type GlobalVariable struct {
	Name  string `yaml:"name" validate:"required,max=128"`
	Value string `yaml:"value"`
}

type DeviceType struct {
	Name        string     `yaml:"name" validate:"required,max=128"`
	Description string     `yaml:"description" validate:"max=1024"`
	Templates   []Template `yaml:"templates" validate:"dive"`
}

type Template struct {
	Name        string     `yaml:"name" validate:"required,max=255"`
	Category    string     `yaml:"category" validate:"max=128"`
	Description string     `yaml:"description" validate:"max=1024"`
	Default     bool       `yaml:"default"`
	Active      *bool      `yaml:"active"` // по умолчанию true
	Body        string     `yaml:"body" validate:"required"`
	Variables   []Variable `yaml:"variables" validate:"dive"`
}

type Variable struct {
	Name     string                  `yaml:"name" validate:"required,max=128"`
	Label    string                  `yaml:"label" validate:"max=255"`
	Type     string                  `yaml:"type" validate:"required"`
	Required bool                    `yaml:"required"`
	Default  string                  `yaml:"default"`
	Min      *float64                `yaml:"min"`
	Max      *float64                `yaml:"max"`
	Pattern  string                  `yaml:"pattern" validate:"max=512"`
	Options  []models.VariableOption `yaml:"options"`
	Help     string                  `yaml:"help" validate:"max=1024"`
	Order    int                     `yaml:"order"`
}

var structValidator = validator.New()

// Parse читает и проверяет YAML; ошибки собираются все сразу.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := structValidator.Struct(&f); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if err := f.check(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) check() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	for _, g := range f.GlobalVariables {
		if !placeholder.ValidName(g.Name) {
			add("global variable %q: name must be UPPER_SNAKE", g.Name)
		}
	}
	checkVars := func(scope string, vars []Variable) {
		seen := map[string]bool{}
		for _, v := range vars {
			if seen[v.Name] {
				add("%s: duplicate variable %q", scope, v.Name)
			}
			seen[v.Name] = true
			if !placeholder.ValidName(v.Name) {
				add("%s: variable %q: name must be UPPER_SNAKE", scope, v.Name)
			}
			def, err := variables.FromModel(v.model(nil))
			if err != nil {
				add("%s: variable %q: %v", scope, v.Name, err)
				continue
			}
			if v.Default != "" {
				if res := variables.Validate(v.Default, def); !res.Valid {
					add("%s: variable %q: default %v", scope, v.Name, res.Err)
				}
			}
		}
	}
	checkVars("global scope", f.Variables)

	types := map[string]bool{}
	for _, dt := range f.DeviceTypes {
		if types[dt.Name] {
			add("duplicate device type %q", dt.Name)
		}
		types[dt.Name] = true
		tpls := map[string]bool{}
		for _, t := range dt.Templates {
			scope := fmt.Sprintf("template %s/%s", dt.Name, t.Name)
			if tpls[t.Name] {
				add("%s: duplicate template", scope)
			}
			tpls[t.Name] = true
			checkVars(scope, t.Variables)
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("catalog: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (v Variable) model(templateID *uint) models.VariableDefinition {
	return models.VariableDefinition{
		TemplateID:   templateID,
		Name:         v.Name,
		Label:        v.Label,
		Type:         v.Type,
		Required:     v.Required,
		DefaultValue: v.Default,
		MinValue:     v.Min,
		MaxValue:     v.Max,
		Pattern:      v.Pattern,
		Options:      v.Options,
		HelpText:     v.Help,
		DisplayOrder: v.Order,
	}
}

type Summary struct {
	DeviceTypes     int
	Templates       int
	Variables       int
	GlobalVariables int
}

type Importer struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewImporter(db *gorm.DB) *Importer {
	return &Importer{db: db, log: logs.Component("catalog")}
}

// Import — upsert по естественным ключам; всё или ничего.
func (im *Importer) Import(ctx context.Context, f *File) (Summary, error) {
	var sum Summary
	err := im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, g := range f.GlobalVariables {
			row := models.GlobalVariable{}
			if err := tx.Where(models.GlobalVariable{Name: g.Name}).
				Assign(map[string]any{"value": g.Value}).
				FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("global variable %s: %w", g.Name, err)
			}
			sum.GlobalVariables++
		}
		for _, v := range f.Variables {
			if err := upsertVariable(tx, nil, v); err != nil {
				return err
			}
			sum.Variables++
		}
		for _, dt := range f.DeviceTypes {
			typ := models.DeviceType{}
			if err := tx.Where(models.DeviceType{Name: dt.Name}).
				Assign(map[string]any{"description": dt.Description}).
				FirstOrCreate(&typ).Error; err != nil {
				return fmt.Errorf("device type %s: %w", dt.Name, err)
			}
			sum.DeviceTypes++
			for _, t := range dt.Templates {
				if err := checkBodyUnchanged(tx, typ.ID, t); err != nil {
					return fmt.Errorf("template %s/%s: %w", dt.Name, t.Name, err)
				}
				active := t.Active == nil || *t.Active
				tpl := models.Template{}
				if err := tx.Where(models.Template{DeviceTypeID: typ.ID, Name: t.Name}).
					Assign(map[string]any{
						"category":    t.Category,
						"description": t.Description,
						"body":        t.Body,
						"is_default":  t.Default,
						"is_active":   active,
					}).
					FirstOrCreate(&tpl).Error; err != nil {
					return fmt.Errorf("template %s/%s: %w", dt.Name, t.Name, err)
				}
				sum.Templates++
				for _, v := range t.Variables {
					if err := upsertVariable(tx, &tpl.ID, v); err != nil {
						return err
					}
					sum.Variables++
				}
				if err := checkPlaceholders(tx, tpl.ID, t.Body); err != nil {
					return fmt.Errorf("template %s/%s: %w", dt.Name, t.Name, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	im.log.WithFields(logrus.Fields{
		"device_types":     sum.DeviceTypes,
		"templates":        sum.Templates,
		"variables":        sum.Variables,
		"global_variables": sum.GlobalVariables,
	}).Info("catalog imported")
	return sum, nil
}

// ErrTemplateInUse — тело шаблона, по которому уже сгенерированы версии,
// не меняется; новое тело импортируется под другим именем.
var ErrTemplateInUse = errors.New("template body is used by generated config versions")

func checkBodyUnchanged(tx *gorm.DB, deviceTypeID uint, t Template) error {
	var existing models.Template
	err := tx.Where("device_type_id = ? AND name = ?", deviceTypeID, t.Name).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	case err != nil:
		return err
	case existing.Body == t.Body:
		return nil
	}
	var n int64
	if err := tx.Model(&models.ConfigVersion{}).Where("template_id = ?", existing.ID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w (%d versions)", ErrTemplateInUse, n)
	}
	return nil
}

// ErrUndefinedPlaceholder — в теле есть имя, которому не из чего получить
// значение: такой шаблон никогда не отрендерится.
var ErrUndefinedPlaceholder = errors.New("undefined placeholders")

func checkPlaceholders(tx *gorm.DB, templateID uint, body string) error {
	names := placeholder.Placeholders(body)
	if len(names) == 0 {
		return nil
	}
	var defined []string
	if err := tx.Model(&models.VariableDefinition{}).
		Where("name IN ? AND (template_id = ? OR template_id IS NULL)", names, templateID).
		Pluck("name", &defined).Error; err != nil {
		return err
	}
	var globals []string
	if err := tx.Model(&models.GlobalVariable{}).Where("name IN ?", names).Pluck("name", &globals).Error; err != nil {
		return err
	}
	known := make(map[string]bool, len(defined)+len(globals))
	for _, n := range append(defined, globals...) {
		known[n] = true
	}
	var missing []string
	for _, n := range names {
		if !known[n] {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrUndefinedPlaceholder, strings.Join(missing, ", "))
	}
	return nil
}

// upsertVariable: template_id NULL уникальным индексом не ловится, поэтому
// поиск явный.
func upsertVariable(tx *gorm.DB, templateID *uint, v Variable) error {
	q := tx.Where("name = ?", v.Name)
	if templateID == nil {
		q = q.Where("template_id IS NULL")
	} else {
		q = q.Where("template_id = ?", *templateID)
	}
	var existing models.VariableDefinition
	err := q.First(&existing).Error
	row := v.model(templateID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("variable %s: %w", v.Name, err)
		}
	case err != nil:
		return fmt.Errorf("variable %s: %w", v.Name, err)
	default:
		row.ID = existing.ID
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("variable %s: %w", v.Name, err)
		}
	}
	return nil
}
