// Package provisioning — стадии начального провижининга телефонов:
// boot → certificates → staging config, плюс выдача назначенной версии конфига.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"phoneprov/internal/logs"
	"phoneprov/internal/metrics"
	"phoneprov/internal/middleware"
	"phoneprov/internal/models"
	"phoneprov/internal/render/ini"
	"phoneprov/internal/repo"
)

const (
	CAFile     = "ca.crt"
	ServerFile = "server.crt"

	docVersion = "#!version:1.0.0.1"
)

var certFileRe = regexp.MustCompile(`^[A-Za-z0-9_]+\.crt$`)

type DeviceLookup interface {
	GetByMAC(ctx context.Context, mac string) (*models.Device, error)
}

type LogRecorder interface {
	Record(ctx context.Context, e *models.ProvisioningLog) error
}

type AssignmentLookup interface {
	AssignmentForDevice(ctx context.Context, deviceID uint) (*models.DeviceConfigAssignment, *models.ConfigVersion, error)
}

type Options struct {
	BaseURL string // пусто — https://<Host запроса>
	CertDir string
}

type Handler struct {
	devices     DeviceLookup
	logs        LogRecorder
	assignments AssignmentLookup
	opts        Options
	log         *logrus.Entry
}

func New(devices DeviceLookup, logRec LogRecorder, assignments AssignmentLookup, opts Options) *Handler {
	return &Handler{
		devices:     devices,
		logs:        logRec,
		assignments: assignments,
		opts:        opts,
		log:         logs.Component("provisioning"),
	}
}

// GET /boot?mac=… | /boot?{mac} | /{mac}.boot
func (h *Handler) Boot(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["mac"]
	if raw == "" {
		raw = bootQueryMAC(r.URL)
	}
	dev, ok := h.lookup(w, r, models.StageBoot, raw)
	if !ok {
		return
	}
	base := h.baseURL(r)
	compact := CompactMAC(dev.MACAddress)

	doc := ini.New().Header(docVersion)
	doc.Section("DEVICE").
		Set("mac", dev.MACAddress).
		Set("name", dev.Name).
		Set("device_type_id", fmt.Sprint(dev.DeviceTypeID))
	certSection(doc, base)
	doc.Section("PROVISIONING").
		Set("config_url", base+"/"+compact+".cfg").
		Set("transport", "https").
		Set("require_tls", "1")

	h.record(r, dev, models.StageBoot, nil)
	metrics.ProvisioningRequest(models.StageBoot, metrics.OutcomeOK)
	writeDocument(w, compact+".boot", doc.Bytes())
}

// GET /staging/certificates — документ со ссылками на сертификаты.
func (h *Handler) Certificates(w http.ResponseWriter, r *http.Request) {
	doc := ini.New().Header(docVersion)
	certSection(doc, h.baseURL(r))
	metrics.ProvisioningRequest(models.StageCertificates, metrics.OutcomeOK)
	writeDocument(w, "certificates.cfg", doc.Bytes())
}

// GET /staging/certificates/{file} — только *.crt из cert_dir, без обхода путей.
func (h *Handler) CertificateFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["file"]
	if !certFileRe.MatchString(name) || h.opts.CertDir == "" {
		metrics.ProvisioningRequest(models.StageCertificates, metrics.OutcomeNotFound)
		http.NotFound(w, r)
		return
	}
	data, err := os.ReadFile(filepath.Join(h.opts.CertDir, name))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			h.log.WithError(err).WithField("file", name).Error("read certificate")
		}
		metrics.ProvisioningRequest(models.StageCertificates, metrics.OutcomeNotFound)
		http.NotFound(w, r)
		return
	}
	metrics.ProvisioningRequest(models.StageCertificates, metrics.OutcomeOK)
	w.Header().Set("Content-Type", "application/x-x509-ca-cert")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// GET /{mac}.cfg — только перевод телефона на полный провижининг;
// назначенная версия здесь не отдаётся.
func (h *Handler) StagingConfig(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.lookup(w, r, models.StageStaging, mux.Vars(r)["mac"])
	if !ok {
		return
	}
	base := h.baseURL(r)
	compact := CompactMAC(dev.MACAddress)

	doc := ini.New().Header(docVersion)
	certSection(doc, base)
	doc.Section("AUTOPROVISION").
		Set("server_url", base+"/provisioning/"+compact+".cfg").
		Set("mode", "power_on").
		Set("reboot_after_update", "1")

	h.record(r, dev, models.StageStaging, nil)
	metrics.ProvisioningRequest(models.StageStaging, metrics.OutcomeOK)
	writeDocument(w, compact+".cfg", doc.Bytes())
}

// GET /provisioning/{mac}.cfg — содержимое назначенной устройству версии.
func (h *Handler) DeviceConfig(w http.ResponseWriter, r *http.Request) {
	dev, ok := h.lookup(w, r, models.StageConfig, mux.Vars(r)["mac"])
	if !ok {
		return
	}
	_, ver, err := h.assignments.AssignmentForDevice(r.Context(), dev.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// без назначения ответ тот же, что для неизвестного MAC
			h.deny(w, models.StageConfig, metrics.OutcomeNotFound)
			return
		}
		h.fail(w, r, models.StageConfig, err)
		return
	}
	h.record(r, dev, models.StageConfig, &ver.ID)
	metrics.ProvisioningRequest(models.StageConfig, metrics.OutcomeOK)
	writeDocument(w, CompactMAC(dev.MACAddress)+".cfg", []byte(ver.Content))
}

// lookup — общий fail-closed поиск устройства. Неверный MAC, неизвестное и
// выключенное устройство дают один и тот же ответ.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, stage, raw string) (*models.Device, bool) {
	mac, err := NormalizeMAC(raw)
	if err != nil {
		h.reject(w, stage)
		return nil, false
	}
	dev, err := h.devices.GetByMAC(r.Context(), mac)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		h.reject(w, stage)
		return nil, false
	case err != nil:
		h.fail(w, r, stage, err)
		return nil, false
	case !dev.IsActive:
		h.reject(w, stage)
		return nil, false
	}
	return dev, true
}

func (h *Handler) reject(w http.ResponseWriter, stage string) {
	h.deny(w, stage, metrics.OutcomeRejected)
}

func (h *Handler) deny(w http.ResponseWriter, stage, outcome string) {
	metrics.ProvisioningRequest(stage, outcome)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte("access denied\n"))
}

// fail — внутренняя ошибка: подробности в лог, телефону — общий документ.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, stage string, err error) {
	h.log.WithError(err).WithFields(logrus.Fields{
		"stage":      stage,
		"request_id": middleware.GetRequestID(r),
		"path":       r.URL.Path,
	}).Error("provisioning failed")
	metrics.ProvisioningRequest(stage, metrics.OutcomeError)
	writeErrorDocument(w)
}

// record — журнал обращений; сбой записи не ломает ответ телефону.
func (h *Handler) record(r *http.Request, dev *models.Device, stage string, versionID *uint) {
	if h.logs == nil {
		return
	}
	e := &models.ProvisioningLog{
		DeviceID:        dev.ID,
		MACAddress:      dev.MACAddress,
		Stage:           stage,
		SourceAddress:   remoteHost(r.RemoteAddr),
		ClientID:        truncate(r.UserAgent(), 255),
		ConfigVersionID: versionID,
	}
	if err := h.logs.Record(r.Context(), e); err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{"stage": stage, "mac": dev.MACAddress}).Warn("provisioning log write failed")
	}
}

// baseURL — всегда https: последующие стадии идут только по TLS.
func (h *Handler) baseURL(r *http.Request) string {
	if h.opts.BaseURL != "" {
		if u, err := url.Parse(h.opts.BaseURL); err == nil && u.Host != "" {
			u.Scheme = "https"
			return strings.TrimRight(u.String(), "/")
		}
	}
	return "https://" + r.Host
}

// Recover — телефон никогда не получает оборванный ответ.
func (h *Handler) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.WithField("panic", rec).WithField("path", r.URL.Path).Error("provisioning panic")
				writeErrorDocument(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func certSection(doc *ini.Document, base string) {
	doc.Section("CERTIFICATES").
		Set("ca_url", base+"/staging/certificates/"+CAFile).
		Set("server_url", base+"/staging/certificates/"+ServerFile)
}

func writeDocument(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeErrorDocument(w http.ResponseWriter) {
	doc := ini.New().Header(docVersion)
	doc.Section("ERROR").Set("message", "internal error")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write(doc.Bytes())
}

// bootQueryMAC: ?mac=… или голая строка запроса ?001565AABBCC.
func bootQueryMAC(u *url.URL) string {
	if m := u.Query().Get("mac"); m != "" {
		return m
	}
	if u.RawQuery != "" && !strings.Contains(u.RawQuery, "=") {
		if s, err := url.QueryUnescape(u.RawQuery); err == nil {
			return s
		}
	}
	return ""
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
