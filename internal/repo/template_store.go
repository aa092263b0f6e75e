package repo

import (
	"context"

	"gorm.io/gorm"

	"phoneprov/internal/models"
)

type TemplateStore struct{ db *gorm.DB }

func NewTemplateStore(db *gorm.DB) *TemplateStore { return &TemplateStore{db: db} }

// ListForDeviceType — активные шаблоны типа; шаблон по умолчанию первым.
// Если по ошибке default-шаблонов несколько, первым идёт с меньшим id.
func (s *TemplateStore) ListForDeviceType(ctx context.Context, deviceTypeID uint) ([]models.Template, error) {
	var tpls []models.Template
	if err := s.db.WithContext(ctx).
		Where("device_type_id = ? AND is_active = ?", deviceTypeID, true).
		Order("is_default desc, id asc").
		Find(&tpls).Error; err != nil {
		return nil, wrap("list templates", err)
	}
	return tpls, nil
}

func (s *TemplateStore) Get(ctx context.Context, id uint) (*models.Template, error) {
	var t models.Template
	if err := s.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, wrap("get template", err)
	}
	return &t, nil
}

// VariablesForTemplate — переменные шаблона и глобальной области;
// шаблонные идут первыми, внутри — по display_order.
func (s *TemplateStore) VariablesForTemplate(ctx context.Context, templateID uint) ([]models.VariableDefinition, error) {
	var defs []models.VariableDefinition
	if err := s.db.WithContext(ctx).
		Where("template_id = ? OR template_id IS NULL", templateID).
		Order("CASE WHEN template_id IS NULL THEN 1 ELSE 0 END, display_order asc, id asc").
		Find(&defs).Error; err != nil {
		return nil, wrap("list variables", err)
	}
	return defs, nil
}

func (s *TemplateStore) GlobalVariables(ctx context.Context) (map[string]string, error) {
	var rows []models.GlobalVariable
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, wrap("list global variables", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Name] = r.Value
	}
	return out, nil
}
