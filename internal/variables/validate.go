package variables

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var dottedQuad = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})$`)

const dateLayout = "2006-01-02"

type Reason string

const (
	ReasonRequired Reason = "required"
	ReasonPattern  Reason = "pattern"
	ReasonEmail    Reason = "email"
	ReasonURL      Reason = "url"
	ReasonIP       Reason = "ip_address"
	ReasonNumber   Reason = "number"
	ReasonRange    Reason = "range"
	ReasonDate     Reason = "date"
	ReasonOption   Reason = "option"
	ReasonKind     Reason = "kind"
)

// ValidationError — исправимая пользователем ошибка значения.
type ValidationError struct {
	Field   string `json:"field"`
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors — ошибки по полям формы.
type ValidationErrors map[string]*ValidationError

func (e ValidationErrors) Error() string {
	names := make([]string, 0, len(e))
	for n := range e {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, e[n].Error())
	}
	return "invalid variables: " + strings.Join(parts, "; ")
}

// Messages — поле → текст, для ответа формы.
func (e ValidationErrors) Messages() map[string]string {
	out := make(map[string]string, len(e))
	for n, v := range e {
		out[n] = v.Message
	}
	return out
}

type Result struct {
	Valid      bool
	Err        *ValidationError
	Normalized string
}

func fail(def Definition, r Reason, format string, args ...any) Result {
	return Result{Err: &ValidationError{Field: def.Name, Reason: r, Message: fmt.Sprintf(format, args...)}}
}

func ok(v string) Result { return Result{Valid: true, Normalized: v} }

// Validate проверяет одно сырое значение против определения. Чистая функция.
// Пустое значение: ошибка при Required, иначе валидно без дальнейших проверок.
func Validate(raw string, def Definition) Result {
	if def.Kind.IsList() {
		return validateList(SplitList(raw), def)
	}
	if strings.TrimSpace(raw) == "" {
		if def.Required {
			return fail(def, ReasonRequired, "%s is required", def.Label)
		}
		return ok("")
	}

	switch def.Kind {
	case KindText, KindTextarea, KindPassword:
		return validateText(raw, def)
	case KindEmail:
		v := strings.TrimSpace(raw)
		if validate.Var(v, "required,email") != nil {
			return fail(def, ReasonEmail, "%s must be a valid e-mail address", def.Label)
		}
		return ok(v)
	case KindURL:
		v := strings.TrimSpace(raw)
		if validate.Var(v, "required,url") != nil {
			return fail(def, ReasonURL, "%s must be an absolute URL with scheme", def.Label)
		}
		return ok(v)
	case KindIPAddress:
		return validateIPv4(strings.TrimSpace(raw), def)
	case KindNumber, KindRange:
		return validateNumber(strings.TrimSpace(raw), def)
	case KindDate:
		v := strings.TrimSpace(raw)
		if _, err := time.Parse(dateLayout, v); err != nil {
			return fail(def, ReasonDate, "%s must be a date (YYYY-MM-DD)", def.Label)
		}
		return ok(v)
	case KindBoolean, KindSelect, KindRadio:
		v := strings.TrimSpace(raw)
		if len(def.Options) > 0 && !def.HasOption(v) {
			return fail(def, ReasonOption, "%s: %q is not an allowed option", def.Label, v)
		}
		return ok(v)
	default:
		return fail(def, ReasonKind, "%s has unsupported type %q", def.Label, def.Kind)
	}
}

// ValidateValues проверяет все определения против введённых значений.
func ValidateValues(defs []Definition, values Values) ValidationErrors {
	errs := ValidationErrors{}
	for _, d := range defs {
		if r := Validate(d.Serialize(values[d.Name]), d); !r.Valid {
			errs[d.Name] = r.Err
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func validateText(raw string, def Definition) Result {
	if def.Pattern == "" {
		return ok(raw)
	}
	re, err := compilePattern(def.Pattern)
	if err != nil {
		return fail(def, ReasonPattern, "%s has an invalid pattern", def.Label)
	}
	if !re.MatchString(raw) {
		return fail(def, ReasonPattern, "%s has an invalid format", def.Label)
	}
	return ok(raw)
}

// compilePattern снимает ограничители вида /.../flags и требует полного совпадения.
func compilePattern(p string) (*regexp.Regexp, error) {
	flags := ""
	if len(p) >= 2 && p[0] == '/' {
		if end := strings.LastIndexByte(p, '/'); end > 0 {
			for _, f := range p[end+1:] {
				if f == 'i' || f == 's' || f == 'm' {
					flags += string(f)
				}
			}
			p = p[1:end]
		}
	}
	p = strings.TrimPrefix(p, "^")
	if strings.HasSuffix(p, "$") && !strings.HasSuffix(p, `\$`) {
		p = strings.TrimSuffix(p, "$")
	}
	expr := `^(?:` + p + `)$`
	if flags != "" {
		expr = "(?" + flags + ")" + expr
	}
	return regexp.Compile(expr)
}

func validateIPv4(v string, def Definition) Result {
	m := dottedQuad.FindStringSubmatch(v)
	if m == nil {
		return fail(def, ReasonIP, "%s must be an IPv4 address", def.Label)
	}
	for _, oct := range m[1:] {
		n, err := strconv.Atoi(oct)
		if err != nil || n > 255 {
			return fail(def, ReasonIP, "%s must be an IPv4 address", def.Label)
		}
	}
	if validate.Var(v, "ipv4") != nil {
		return fail(def, ReasonIP, "%s must be an IPv4 address", def.Label)
	}
	return ok(v)
}

func validateNumber(v string, def Definition) Result {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return fail(def, ReasonNumber, "%s must be a number", def.Label)
	}
	if def.Min != nil && n < *def.Min {
		return fail(def, ReasonRange, "%s must be >= %s", def.Label, formatFloat(*def.Min))
	}
	if def.Max != nil && n > *def.Max {
		return fail(def, ReasonRange, "%s must be <= %s", def.Label, formatFloat(*def.Max))
	}
	return ok(v)
}

func validateList(tokens []string, def Definition) Result {
	if len(tokens) == 0 {
		if def.Required {
			return fail(def, ReasonRequired, "%s is required", def.Label)
		}
		return ok("")
	}
	if len(def.Options) > 0 {
		for _, t := range tokens {
			if !def.HasOption(t) {
				return fail(def, ReasonOption, "%s: %q is not an allowed option", def.Label, t)
			}
		}
	}
	return ok(strings.Join(tokens, ","))
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
