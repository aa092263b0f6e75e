package variables

// Input — описание поля формы для типа переменной.
type Input struct {
	Widget   string `json:"widget"`
	HTMLType string `json:"html_type,omitempty"`
	Multiple bool   `json:"multiple,omitempty"`
	Options  bool   `json:"options,omitempty"`
}

// InputFor — по одному обработчику на каждый Kind; новый Kind без ветки
// ловит TestInputForCoversAllKinds.
func InputFor(k Kind) (Input, bool) {
	switch k {
	case KindText:
		return Input{Widget: "input", HTMLType: "text"}, true
	case KindTextarea:
		return Input{Widget: "textarea"}, true
	case KindPassword:
		return Input{Widget: "input", HTMLType: "password"}, true
	case KindEmail:
		return Input{Widget: "input", HTMLType: "email"}, true
	case KindURL:
		return Input{Widget: "input", HTMLType: "url"}, true
	case KindIPAddress:
		return Input{Widget: "input", HTMLType: "text"}, true
	case KindNumber:
		return Input{Widget: "input", HTMLType: "number"}, true
	case KindRange:
		return Input{Widget: "input", HTMLType: "range"}, true
	case KindDate:
		return Input{Widget: "input", HTMLType: "date"}, true
	case KindBoolean:
		return Input{Widget: "checkbox", Options: true}, true
	case KindSelect:
		return Input{Widget: "select", Options: true}, true
	case KindRadio:
		return Input{Widget: "radio", Options: true}, true
	case KindMultiselect:
		return Input{Widget: "select", Multiple: true, Options: true}, true
	case KindCheckboxGroup:
		return Input{Widget: "checkbox", Multiple: true, Options: true}, true
	}
	return Input{}, false
}
