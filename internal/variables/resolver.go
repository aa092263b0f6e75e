package variables

import (
	"context"
	"fmt"
	"strings"

	"phoneprov/internal/models"
)

// Values — сырой ввод оператора: имя → значения (одно для скалярных типов).
type Values map[string][]string

// Source — один источник значений в цепочке приоритетов.
type Source interface {
	Lookup(name string) (string, bool)
}

type SourceFunc func(name string) (string, bool)

func (f SourceFunc) Lookup(name string) (string, bool) { return f(name) }

// Chain опрашивает источники по порядку и останавливается на первом попадании.
type Chain []Source

func (c Chain) Lookup(name string) (string, bool) {
	for _, s := range c {
		if v, ok := s.Lookup(name); ok {
			return v, true
		}
	}
	return "", false
}

// Supplied — введённые значения; пустое значение попаданием не считается.
func Supplied(defs []Definition, values Values) Source {
	byName := make(map[string]Definition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	return SourceFunc(func(name string) (string, bool) {
		vals, ok := values[name]
		if !ok {
			return "", false
		}
		v := Definition{Kind: byName[name].Kind}.Serialize(vals)
		if strings.TrimSpace(v) == "" {
			return "", false
		}
		return v, true
	})
}

// Defaults — непустые значения по умолчанию из определений.
func Defaults(defs []Definition) Source {
	m := make(map[string]string, len(defs))
	for _, d := range defs {
		if d.Default != "" {
			m[d.Name] = d.Default
		}
	}
	return mapSource(m)
}

// Globals — глобальные переменные.
func Globals(globals map[string]string) Source { return mapSource(globals) }

func mapSource(m map[string]string) Source {
	return SourceFunc(func(name string) (string, bool) {
		v, ok := m[name]
		return v, ok
	})
}

// ResolveWith — порядок: ввод → default определения → глобальная → "".
// В результат попадают все определения и все глобальные переменные,
// чтобы шаблон мог ссылаться на глобальные напрямую.
func ResolveWith(defs []Definition, globals map[string]string, values Values) map[string]string {
	chain := Chain{Supplied(defs, values), Defaults(defs), Globals(globals)}

	out := make(map[string]string, len(defs)+len(globals))
	for name, v := range globals {
		out[name] = v
	}
	for _, d := range defs {
		v, _ := chain.Lookup(d.Name)
		out[d.Name] = v
	}
	return out
}

// Catalog — откуда резолвер берёт определения и глобальные переменные.
type Catalog interface {
	VariablesForTemplate(ctx context.Context, templateID uint) ([]models.VariableDefinition, error)
	GlobalVariables(ctx context.Context) (map[string]string, error)
}

type Resolver struct {
	catalog Catalog
}

func NewResolver(c Catalog) *Resolver { return &Resolver{catalog: c} }

// Definitions — эффективные определения шаблона (шаблонные поверх глобальных).
func (r *Resolver) Definitions(ctx context.Context, templateID uint) ([]Definition, error) {
	rows, err := r.catalog.VariablesForTemplate(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("load variables of template %d: %w", templateID, err)
	}
	return FromModels(rows)
}

// Resolve — единственная точка применения цепочки приоритетов.
func (r *Resolver) Resolve(ctx context.Context, templateID uint, values Values) (map[string]string, error) {
	defs, err := r.Definitions(ctx, templateID)
	if err != nil {
		return nil, err
	}
	globals, err := r.catalog.GlobalVariables(ctx)
	if err != nil {
		return nil, fmt.Errorf("load global variables: %w", err)
	}
	return ResolveWith(defs, globals, values), nil
}
