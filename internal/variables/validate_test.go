package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(f float64) *float64 { return &f }

func TestRequiredRuleAppliesToEveryKind(t *testing.T) {
	for _, k := range AllKinds() {
		t.Run(string(k), func(t *testing.T) {
			req := Definition{Name: "V", Label: "V", Kind: k, Required: true}
			r := Validate("", req)
			require.False(t, r.Valid)
			assert.Equal(t, ReasonRequired, r.Err.Reason)

			opt := Definition{Name: "V", Label: "V", Kind: k, Min: fptr(10), Pattern: `\d+`,
				Options: []Option{{Value: "a"}}}
			assert.True(t, Validate("", opt).Valid)
			assert.True(t, Validate("   ", opt).Valid)
		})
	}
}

func TestValidateNumberRange(t *testing.T) {
	for _, k := range []Kind{KindNumber, KindRange} {
		def := Definition{Name: "SIP_PORT", Label: "SIP port", Kind: k, Min: fptr(1024), Max: fptr(65535)}
		assert.True(t, Validate("5060", def).Valid)
		assert.True(t, Validate("1024", def).Valid)
		assert.True(t, Validate("65535", def).Valid)

		r := Validate("100", def)
		require.False(t, r.Valid)
		assert.Equal(t, ReasonRange, r.Err.Reason)
		assert.False(t, Validate("70000", def).Valid)
		assert.Equal(t, ReasonNumber, Validate("abc", def).Err.Reason)
		assert.False(t, Validate("NaN", def).Valid)
	}
}

func TestValidateMultiselect(t *testing.T) {
	opts := []Option{{Value: "opt1"}, {Value: "opt2"}, {Value: "opt3"}}
	for _, k := range []Kind{KindMultiselect, KindCheckboxGroup} {
		def := Definition{Name: "CODECS", Label: "Codecs", Kind: k, Options: opts}
		r := Validate("opt1,opt2", def)
		require.True(t, r.Valid)
		assert.Equal(t, "opt1,opt2", r.Normalized)
		assert.Equal(t, "opt1,opt3", Validate(" opt1 , ,opt3", def).Normalized)

		r = Validate("opt1,invalid", def)
		require.False(t, r.Valid)
		assert.Equal(t, ReasonOption, r.Err.Reason)

		assert.True(t, Validate(",", def).Valid)
		def.Required = true
		assert.False(t, Validate(",", def).Valid)
	}
}

func TestValidateByKind(t *testing.T) {
	opts := []Option{{Value: "udp", Label: "UDP"}, {Value: "tls", Label: "TLS"}}
	cases := []struct {
		name  string
		def   Definition
		value string
		valid bool
	}{
		{"text no pattern", Definition{Kind: KindText}, "anything", true},
		{"text pattern ok", Definition{Kind: KindText, Pattern: `/^\d{3,4}$/`}, "1001", true},
		{"text pattern partial", Definition{Kind: KindText, Pattern: `\d{3}`}, "12345", false},
		{"text pattern flags", Definition{Kind: KindText, Pattern: `/^ab+$/i`}, "ABB", true},
		{"textarea pattern", Definition{Kind: KindTextarea, Pattern: `[a-z]+`}, "abc1", false},
		{"password pattern", Definition{Kind: KindPassword, Pattern: `.{8,}`}, "short", false},
		{"bad pattern", Definition{Kind: KindText, Pattern: `(`}, "x", false},
		{"email ok", Definition{Kind: KindEmail}, "ops@example.com", true},
		{"email bad", Definition{Kind: KindEmail}, "ops@", false},
		{"url ok", Definition{Kind: KindURL}, "https://pbx.example.com/prov", true},
		{"url relative", Definition{Kind: KindURL}, "/prov/file.cfg", false},
		{"url no scheme", Definition{Kind: KindURL}, "pbx.example.com", false},
		{"ip ok", Definition{Kind: KindIPAddress}, "192.168.1.10", true},
		{"ip edge", Definition{Kind: KindIPAddress}, "255.255.255.0", true},
		{"ip octet", Definition{Kind: KindIPAddress}, "192.168.1.256", false},
		{"ip short", Definition{Kind: KindIPAddress}, "10.0.1", false},
		{"ip v6", Definition{Kind: KindIPAddress}, "::1", false},
		{"date ok", Definition{Kind: KindDate}, "2024-02-29", true},
		{"date month 13", Definition{Kind: KindDate}, "2024-13-01", false},
		{"date day 32", Definition{Kind: KindDate}, "2024-01-32", false},
		{"date feb 30", Definition{Kind: KindDate}, "2023-02-30", false},
		{"select ok", Definition{Kind: KindSelect, Options: opts}, "tls", true},
		{"select by label", Definition{Kind: KindSelect, Options: opts}, "TLS", false},
		{"radio bad", Definition{Kind: KindRadio, Options: opts}, "tcp", false},
		{"boolean options", Definition{Kind: KindBoolean, Options: []Option{{Value: "0"}, {Value: "1"}}}, "1", true},
		{"boolean bad", Definition{Kind: KindBoolean, Options: []Option{{Value: "0"}, {Value: "1"}}}, "yes", false},
		{"select no options", Definition{Kind: KindSelect}, "free", true},
		{"unknown kind", Definition{Kind: Kind("color")}, "red", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.def.Name, tc.def.Label = "V", "V"
			r := Validate(tc.value, tc.def)
			assert.Equal(t, tc.valid, r.Valid, "error: %v", r.Err)
			if !tc.valid {
				require.NotNil(t, r.Err)
				assert.Equal(t, "V", r.Err.Field)
			}
		})
	}
}

func TestValidateValues(t *testing.T) {
	defs := []Definition{
		{Name: "SIP_USER", Label: "User", Kind: KindText, Required: true},
		{Name: "SIP_PORT", Label: "Port", Kind: KindNumber, Min: fptr(1024), Max: fptr(65535)},
		{Name: "CODECS", Label: "Codecs", Kind: KindMultiselect, Options: []Option{{Value: "pcma"}, {Value: "g722"}}},
	}
	assert.Nil(t, ValidateValues(defs, Values{
		"SIP_USER": {"1001"},
		"CODECS":   {"pcma", "g722"},
	}))

	errs := ValidateValues(defs, Values{"SIP_PORT": {"80"}, "CODECS": {"opus"}})
	require.Len(t, errs, 3)
	assert.Equal(t, ReasonRequired, errs["SIP_USER"].Reason)
	assert.Equal(t, ReasonRange, errs["SIP_PORT"].Reason)
	assert.Equal(t, ReasonOption, errs["CODECS"].Reason)
	assert.Contains(t, errs.Error(), "SIP_PORT")
	assert.Len(t, errs.Messages(), 3)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("checkbox_group")
	require.NoError(t, err)
	assert.True(t, k.IsList())
	_, err = ParseKind("color")
	assert.Error(t, err)
}

func TestInputForCoversAllKinds(t *testing.T) {
	for _, k := range AllKinds() {
		in, ok := InputFor(k)
		assert.True(t, ok, "kind %s has no input", k)
		assert.NotEmpty(t, in.Widget)
		assert.Equal(t, k.IsList(), in.Multiple, "kind %s", k)
	}
	_, ok := InputFor(Kind("color"))
	assert.False(t, ok)
}
