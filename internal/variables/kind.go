package variables

import "fmt"

// Kind — закрытое множество типов переменных.
type Kind string

const (
	KindText          Kind = "text"
	KindTextarea      Kind = "textarea"
	KindPassword      Kind = "password"
	KindEmail         Kind = "email"
	KindURL           Kind = "url"
	KindIPAddress     Kind = "ip_address"
	KindNumber        Kind = "number"
	KindRange         Kind = "range"
	KindDate          Kind = "date"
	KindBoolean       Kind = "boolean"
	KindSelect        Kind = "select"
	KindRadio         Kind = "radio"
	KindMultiselect   Kind = "multiselect"
	KindCheckboxGroup Kind = "checkbox_group"
)

var allKinds = []Kind{
	KindText, KindTextarea, KindPassword, KindEmail, KindURL, KindIPAddress,
	KindNumber, KindRange, KindDate, KindBoolean, KindSelect, KindRadio,
	KindMultiselect, KindCheckboxGroup,
}

func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

func ParseKind(s string) (Kind, error) {
	for _, k := range allKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown variable type %q", s)
}

// IsList — значения хранятся списком и сериализуются через запятую.
func (k Kind) IsList() bool {
	return k == KindMultiselect || k == KindCheckboxGroup
}
