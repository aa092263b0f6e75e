package logs

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, parseLevel("debug"))
	assert.Equal(t, logrus.WarnLevel, parseLevel("warn"))
	assert.Equal(t, logrus.WarnLevel, parseLevel("warning"))
	assert.Equal(t, logrus.InfoLevel, parseLevel("nonsense"))
}

func TestInitJSONAndComponent(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { Logger = prev })

	Init(Options{Level: "debug", Format: "json"})
	var buf bytes.Buffer
	Logger.SetOutput(&buf)

	Component("wizard").Debug("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "wizard", line["component"])
	assert.Equal(t, "hello", line["msg"])
}
