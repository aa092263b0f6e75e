package provisioning

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"phoneprov/internal/models"
	"phoneprov/internal/repo"
)

type fakeDevices struct {
	byMAC map[string]*models.Device
	err   error
}

func (f *fakeDevices) GetByMAC(_ context.Context, mac string) (*models.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	if d, ok := f.byMAC[mac]; ok {
		return d, nil
	}
	return nil, repo.ErrNotFound
}

type fakeLogs struct {
	entries []models.ProvisioningLog
	err     error
}

func (f *fakeLogs) Record(_ context.Context, e *models.ProvisioningLog) error {
	f.entries = append(f.entries, *e)
	return f.err
}

type fakeAssignments struct {
	versions map[uint]*models.ConfigVersion
}

func (f *fakeAssignments) AssignmentForDevice(_ context.Context, deviceID uint) (*models.DeviceConfigAssignment, *models.ConfigVersion, error) {
	v, ok := f.versions[deviceID]
	if !ok {
		return nil, nil, repo.ErrNotFound
	}
	return &models.DeviceConfigAssignment{DeviceID: deviceID, ConfigVersionID: v.ID}, v, nil
}

type env struct {
	router  *mux.Router
	logs    *fakeLogs
	devices *fakeDevices
}

func newEnv(t *testing.T, creds Credentials) env {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CAFile), []byte("CA-PEM"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.key"), []byte("SECRET"), 0o600))

	devs := &fakeDevices{byMAC: map[string]*models.Device{
		"00:15:65:AA:BB:20": {ID: 1, Name: "desk", MACAddress: "00:15:65:AA:BB:20", DeviceTypeID: 3, IsActive: true},
		"00:15:65:AA:BB:21": {ID: 2, Name: "off", MACAddress: "00:15:65:AA:BB:21", DeviceTypeID: 3, IsActive: false},
	}}
	lg := &fakeLogs{}
	asg := &fakeAssignments{versions: map[uint]*models.ConfigVersion{
		1: {ID: 77, Content: "account.1.password=s3cr3t\n"},
	}}
	h := New(devs, lg, asg, Options{BaseURL: "http://prov.example.com/", CertDir: dir})
	r := mux.NewRouter()
	RegisterRoutes(r, h, creds)
	return env{router: r, logs: lg, devices: devs}
}

func (e env) get(path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.5:5060"
	req.Header.Set("User-Agent", "Yealink SIP-T46S 66.86.0.15")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestBootDocument(t *testing.T) {
	e := newEnv(t, Credentials{})

	for _, path := range []string{"/boot?mac=00-15-65-aa-bb-20", "/boot?001565aabb20", "/001565AABB20.boot"} {
		rec := e.get(path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, `attachment; filename="001565AABB20.boot"`, rec.Header().Get("Content-Disposition"))
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
		body := rec.Body.String()
		assert.Contains(t, body, "mac=00:15:65:AA:BB:20")
		assert.Contains(t, body, "ca_url=https://prov.example.com/staging/certificates/ca.crt")
		assert.Contains(t, body, "config_url=https://prov.example.com/001565AABB20.cfg")
		assert.Contains(t, body, "transport=https")
	}

	require.Len(t, e.logs.entries, 3)
	first := e.logs.entries[0]
	assert.Equal(t, uint(1), first.DeviceID)
	assert.Equal(t, models.StageBoot, first.Stage)
	assert.Equal(t, "10.0.0.5", first.SourceAddress)
	assert.Equal(t, "Yealink SIP-T46S 66.86.0.15", first.ClientID)
	assert.Nil(t, first.ConfigVersionID)
}

func TestUniformRejection(t *testing.T) {
	e := newEnv(t, Credentials{})

	var bodies []string
	for _, path := range []string{
		"/boot?mac=00:15:65:AA:BB:21", // выключен
		"/boot?mac=00:15:65:AA:BB:99", // неизвестен
		"/boot?mac=zz",                // мусор
		"/001565AABB21.cfg",
		"/001565AABB99.cfg",
	} {
		rec := e.get(path)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
		bodies = append(bodies, rec.Body.String())
	}
	for _, b := range bodies {
		assert.Equal(t, bodies[0], b)
	}
	assert.Empty(t, e.logs.entries)
}

func TestStagingConfigIsBootstrapOnly(t *testing.T) {
	e := newEnv(t, Credentials{})
	rec := e.get("/00:15:65:aa:bb:20.cfg")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "server_url=https://prov.example.com/provisioning/001565AABB20.cfg")
	assert.Contains(t, body, "reboot_after_update=1")
	assert.NotContains(t, body, "s3cr3t")
}

func TestDeviceConfigServesAssignment(t *testing.T) {
	e := newEnv(t, Credentials{})

	rec := e.get("/provisioning/001565AABB20.cfg")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "account.1.password=s3cr3t\n", rec.Body.String())
	require.Len(t, e.logs.entries, 1)
	require.NotNil(t, e.logs.entries[0].ConfigVersionID)
	assert.Equal(t, uint(77), *e.logs.entries[0].ConfigVersionID)
	assert.Equal(t, models.StageConfig, e.logs.entries[0].Stage)

}

func TestDeviceConfigWithoutAssignmentLooksUnknown(t *testing.T) {
	e := newEnv(t, Credentials{})
	e.devices.byMAC["00:15:65:AA:BB:30"] = &models.Device{ID: 9, MACAddress: "00:15:65:AA:BB:30", IsActive: true}

	unassigned := e.get("/provisioning/001565AABB30.cfg")
	unknown := e.get("/provisioning/001565AABB99.cfg")
	inactive := e.get("/provisioning/001565AABB21.cfg")

	for _, rec := range []*httptest.ResponseRecorder{unassigned, inactive} {
		assert.Equal(t, unknown.Code, rec.Code)
		assert.Equal(t, unknown.Header().Get("Content-Type"), rec.Header().Get("Content-Type"))
		assert.Equal(t, unknown.Body.Bytes(), rec.Body.Bytes())
	}
	assert.Equal(t, http.StatusForbidden, unassigned.Code)
	assert.Empty(t, e.logs.entries)
}

func TestCertificateFiles(t *testing.T) {
	e := newEnv(t, Credentials{})

	rec := e.get("/staging/certificates/ca.crt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-x509-ca-cert", rec.Header().Get("Content-Type"))
	assert.Equal(t, "CA-PEM", rec.Body.String())

	for _, path := range []string{
		"/staging/certificates/server.key",
		"/staging/certificates/missing.crt",
		"/staging/certificates/ca.crt.bak",
		"/staging/certificates/ca-1.crt",
	} {
		assert.Equal(t, http.StatusNotFound, e.get(path).Code, path)
	}

	rec = e.get("/staging/certificates")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "server_url=https://prov.example.com/staging/certificates/server.crt")
}

func TestInternalErrorDocument(t *testing.T) {
	e := newEnv(t, Credentials{})
	e.devices.err = errors.New("db down")

	rec := e.get("/001565AABB20.boot")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "[ERROR]")
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestLogFailureDoesNotBreakResponse(t *testing.T) {
	e := newEnv(t, Credentials{})
	e.logs.err = errors.New("insert failed")
	assert.Equal(t, http.StatusOK, e.get("/001565AABB20.boot").Code)
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pa55"), bcrypt.MinCost)
	require.NoError(t, err)

	for name, creds := range map[string]Credentials{
		"plain":  {Username: "phone", Password: "pa55"},
		"bcrypt": {Username: "phone", PasswordHash: string(hash)},
	} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, creds)

			rec := e.get("/001565AABB20.boot")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

			req := httptest.NewRequest(http.MethodGet, "/001565AABB20.boot", nil)
			req.SetBasicAuth("phone", "wrong")
			rec = httptest.NewRecorder()
			e.router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			req = httptest.NewRequest(http.MethodGet, "/001565AABB20.boot", nil)
			req.SetBasicAuth("phone", "pa55")
			rec = httptest.NewRecorder()
			e.router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}
