// Package placeholder подставляет переменные в тела шаблонов вида {{NAME}}.
//
// Подстановка однопроходная: значения не сканируются повторно, поэтому
// значение, содержащее "{{X}}", попадает в результат как есть.
// Плейсхолдер без значения — ошибка рендера: конфиг с литеральным {{NAME}}
// на телефон не уходит.
package placeholder

import (
	"regexp"
	"strings"
)

var (
	tokenRe = regexp.MustCompile(`\{\{([A-Z_][A-Z0-9_]*)\}\}`)
	nameRe  = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)
)

// UnresolvedError — в теле есть плейсхолдеры, которым нечего подставить.
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return "unresolved placeholders: " + strings.Join(e.Names, ", ")
}

// ValidName — имя пригодно как ключ плейсхолдера.
func ValidName(name string) bool { return nameRe.MatchString(name) }

// Placeholders — уникальные имена в порядке первого появления.
func Placeholders(body string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range tokenRe.FindAllStringSubmatch(body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Render подставляет vars в body. Лишние переменные игнорируются.
// Одинаковые body и vars всегда дают побайтно одинаковый результат.
func Render(body string, vars map[string]string) (string, error) {
	var missing []string
	seen := map[string]bool{}
	out := tokenRe.ReplaceAllStringFunc(body, func(tok string) string {
		name := tok[2 : len(tok)-2]
		if v, ok := vars[name]; ok {
			return v
		}
		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
		return tok
	})
	if len(missing) > 0 {
		return "", &UnresolvedError{Names: missing}
	}
	return out, nil
}
