package catalog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phoneprov/internal/db/dbtest"
	"phoneprov/internal/models"
)

const sample = `
global_variables:
  - name: NTP_SERVER
    value: pool.ntp.org
variables:
  - name: SIP_SERVER
    label: SIP server
    type: ip_address
    default: 10.0.0.1
device_types:
  - name: yealink-t46
    description: Yealink T46S/T46U
    templates:
      - name: base
        default: true
        body: |
          account.1.sip_server.1.address={{SIP_SERVER}}
          account.1.password={{SIP_PASSWORD}}
          local_time.ntp_server1={{NTP_SERVER}}
        variables:
          - name: SIP_PASSWORD
            type: password
            required: true
          - name: CODECS
            type: multiselect
            options:
              - {value: pcma, label: G.711a}
              - {value: g722, label: G.722}
            default: pcma,g722
            order: 2
`

func TestParseAndImport(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	d := dbtest.New(t)
	im := NewImporter(d)
	sum, err := im.Import(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, Summary{DeviceTypes: 1, Templates: 1, Variables: 3, GlobalVariables: 1}, sum)

	var tpl models.Template
	require.NoError(t, d.Where("name = ?", "base").First(&tpl).Error)
	assert.True(t, tpl.IsDefault)
	assert.True(t, tpl.IsActive)

	var codecs models.VariableDefinition
	require.NoError(t, d.Where("name = ?", "CODECS").First(&codecs).Error)
	require.NotNil(t, codecs.TemplateID)
	assert.Len(t, codecs.Options, 2)

	var global models.VariableDefinition
	require.NoError(t, d.Where("name = ?", "SIP_SERVER").First(&global).Error)
	assert.Nil(t, global.TemplateID)

	// повторный импорт ничего не дублирует и обновляет значения
	f.GlobalVariables[0].Value = "ntp.example.com"
	_, err = im.Import(context.Background(), f)
	require.NoError(t, err)

	var n int64
	require.NoError(t, d.Model(&models.VariableDefinition{}).Count(&n).Error)
	assert.Equal(t, int64(3), n)
	require.NoError(t, d.Model(&models.Template{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	var gv models.GlobalVariable
	require.NoError(t, d.Where("name = ?", "NTP_SERVER").First(&gv).Error)
	assert.Equal(t, "ntp.example.com", gv.Value)
}

func TestImportKeepsBodyOfUsedTemplate(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	d := dbtest.New(t)
	im := NewImporter(d)
	ctx := context.Background()
	_, err = im.Import(ctx, f)
	require.NoError(t, err)

	var tpl models.Template
	require.NoError(t, d.Where("name = ?", "base").First(&tpl).Error)
	original := tpl.Body

	// пока версий нет, тело можно менять
	f.DeviceTypes[0].Templates[0].Body = "account.1.password={{SIP_PASSWORD}}\n"
	_, err = im.Import(ctx, f)
	require.NoError(t, err)
	require.NoError(t, d.First(&tpl, tpl.ID).Error)
	assert.NotEqual(t, original, tpl.Body)
	used := tpl.Body

	require.NoError(t, d.Create(&models.ConfigVersion{
		TargetID: 1, DeviceTypeID: tpl.DeviceTypeID, VersionNumber: 1, Content: "x", TemplateID: &tpl.ID, IsActive: true,
	}).Error)

	f.DeviceTypes[0].Templates[0].Body = "changed={{SIP_PASSWORD}}\n"
	f.GlobalVariables[0].Value = "ntp.example.com"
	_, err = im.Import(ctx, f)
	require.ErrorIs(t, err, ErrTemplateInUse)

	require.NoError(t, d.First(&tpl, tpl.ID).Error)
	assert.Equal(t, used, tpl.Body)
	var g models.GlobalVariable
	require.NoError(t, d.Where("name = ?", "NTP_SERVER").First(&g).Error)
	assert.Equal(t, "pool.ntp.org", g.Value)

	// то же тело повторно импортируется без ошибок
	f.DeviceTypes[0].Templates[0].Body = used
	_, err = im.Import(ctx, f)
	require.NoError(t, err)
}

func TestImportRejectsUndefinedPlaceholder(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	f.DeviceTypes[0].Templates[0].Body += "account.1.label={{LABEL}}\nvlan={{VLAN_ID}}\n"

	d := dbtest.New(t)
	_, err = NewImporter(d).Import(context.Background(), f)
	require.ErrorIs(t, err, ErrUndefinedPlaceholder)
	assert.Contains(t, err.Error(), "LABEL, VLAN_ID")

	var n int64
	require.NoError(t, d.Model(&models.Template{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestParseRejectsBadCatalog(t *testing.T) {
	cases := map[string]string{
		"lower name":    "global_variables:\n  - name: ntp\n    value: x\n",
		"unknown kind":  "variables:\n  - name: A\n    type: colour\n",
		"bad default":   "variables:\n  - name: PORT\n    type: number\n    min: 1\n    max: 10\n    default: \"99\"\n",
		"missing body":  "device_types:\n  - name: t\n    templates:\n      - name: x\n",
		"unknown field": "device_types:\n  - name: t\n    colour: red\n",
		"duplicate": `device_types:
  - name: t
  - name: t
`,
	}
	for name, doc := range cases {
		_, err := Parse(strings.NewReader(doc))
		assert.Error(t, err, name)
	}
}

func TestParseEmpty(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, f.DeviceTypes)
}
