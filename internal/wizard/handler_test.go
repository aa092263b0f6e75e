package wizard

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phoneprov/internal/authz"
	"phoneprov/internal/models"
)

type client struct {
	t      *testing.T
	router *mux.Router
	cookie *http.Cookie
	user   string
}

func newClient(t *testing.T, w *world) *client {
	h := NewHandler(w.machine, NewKVStore(NewMemoryKV(), time.Hour), "wiz")
	r := mux.NewRouter()
	RegisterRoutes(r, h, authz.NewStatic([]string{"alice"}), "X-Remote-User")
	return &client{t: t, router: r, user: "alice"}
}

func (c *client) do(req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	c.t.Helper()
	if c.user != "" {
		req.Header.Set("X-Remote-User", c.user)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "wiz" {
			c.cookie = ck
		}
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func (c *client) get(query string) (*httptest.ResponseRecorder, map[string]any) {
	return c.do(httptest.NewRequest(http.MethodGet, "/wizard"+query, nil))
}

func (c *client) post(form url.Values) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(http.MethodPost, "/wizard", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func TestWizardOverHTTP(t *testing.T) {
	w := newWorld(t)
	c := newClient(t, w)

	rec, view := c.get(fmt.Sprintf("?device_id=%d", w.desk7.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := view["csrf_token"].(string)
	require.NotEmpty(t, token)
	assert.EqualValues(t, 1, view["step"])
	assert.NotEmpty(t, view["device_types"])

	rec, _ = c.post(url.Values{"action": {ActionSelectType}, "csrf_token": {"wrong"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, view = c.post(url.Values{"action": {ActionSelectType}, "csrf_token": {token}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, view["step"])
	assert.EqualValues(t, w.tpl.ID, view["selected_template_id"])

	rec, view = c.post(url.Values{"action": {ActionSelectTemplate}, "csrf_token": {token}, "template_id": {fmt.Sprint(w.tpl.ID)}})
	require.Equal(t, http.StatusOK, rec.Code)
	fields, _ := view["fields"].([]any)
	require.Len(t, fields, 2)
	port := fields[1].(map[string]any)
	assert.Equal(t, "SIP_PORT", port["name"])
	assert.Equal(t, []any{"5060"}, port["value"])

	rec, view = c.post(url.Values{"action": {ActionSetVariables}, "csrf_token": {token}, "var_SIP_PORT": {"70000"}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errs, _ := view["errors"].(map[string]any)
	assert.Contains(t, errs, "SIP_PASSWORD")
	assert.Contains(t, errs, "SIP_PORT")

	rec, view = c.post(url.Values{"action": {ActionSetVariables}, "csrf_token": {token}, "var_SIP_PASSWORD": {"s3cr3t"}, "var_SIP_PORT": {"5060"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, view["step"])
	assert.Contains(t, view["preview"], "account.1.password=s3cr3t")

	rec, view = c.post(url.Values{"action": {ActionSelectCustomer}, "csrf_token": {token}})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	errs, _ = view["errors"].(map[string]any)
	assert.Contains(t, errs, "target_id")

	rec, view = c.post(url.Values{"action": {ActionCommit}, "csrf_token": {token}, "target_id": {"default"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 5, view["step"])
	result, _ := view["result"].(map[string]any)
	assert.EqualValues(t, 1, result["version_number"])
	assert.EqualValues(t, w.desk7.ID, result["assigned_device_id"])

	var asg models.DeviceConfigAssignment
	require.NoError(t, w.db.Where("device_id = ?", w.desk7.ID).First(&asg).Error)
	assert.EqualValues(t, result["config_version_id"], asg.ConfigVersionID)

	rec, view = c.get("?reset=1&step=4")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, view["step"])
	assert.Equal(t, token, view["csrf_token"])
}

func TestWizardCompletedSessionDiscarded(t *testing.T) {
	w := newWorld(t)
	c := newClient(t, w)

	_, view := c.get(fmt.Sprintf("?device_id=%d", w.desk7.ID))
	token, _ := view["csrf_token"].(string)
	steps := []url.Values{
		{"action": {ActionSelectType}},
		{"action": {ActionSelectTemplate}, "template_id": {fmt.Sprint(w.tpl.ID)}},
		{"action": {ActionSetVariables}, "var_SIP_PASSWORD": {"s3cr3t"}, "var_SIP_PORT": {"5060"}},
		{"action": {ActionCommit}, "target_id": {"default"}},
	}
	for _, form := range steps {
		form.Set("csrf_token", token)
		rec, _ := c.post(form)
		require.Equal(t, http.StatusOK, rec.Code, form.Get("action"))
	}

	rec, view := c.get("?step=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, view["step"])
	assert.EqualValues(t, 1, view["max_step"])
	assert.Nil(t, view["result"])
	assert.Nil(t, view["device_id"])
	assert.Equal(t, token, view["csrf_token"])

	// повторный commit без нового прохода мастера невозможен
	rec, _ = c.post(url.Values{"action": {ActionCommit}, "csrf_token": {token}, "target_id": {"default"}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var n int64
	require.NoError(t, w.db.Model(&models.ConfigVersion{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestWizardForbiddenWithoutPermission(t *testing.T) {
	w := newWorld(t)
	c := newClient(t, w)
	c.user = "mallory"
	rec, _ := c.get("")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWizardUnknownDevice(t *testing.T) {
	w := newWorld(t)
	c := newClient(t, w)
	rec, _ := c.get("?device_id=4242")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWizardStepClampedToCollectedData(t *testing.T) {
	w := newWorld(t)
	c := newClient(t, w)
	_, view := c.get("?step=5")
	assert.EqualValues(t, 1, view["step"])
	_, view = c.get("?step=0")
	assert.EqualValues(t, 1, view["step"])
}
