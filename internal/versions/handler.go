package versions

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"phoneprov/internal/authz"
	"phoneprov/internal/logs"
	"phoneprov/internal/middleware"
	"phoneprov/internal/models"
	"phoneprov/internal/repo"
)

type Handler struct {
	svc *Service
	log *logrus.Entry
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, log: logs.Component("versions")}
}

// GET /versions?target_id=&device_type_id=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	out, err := h.svc.List(r.Context(), scope)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, out)
}

// GET /versions/active?target_id=&device_type_id=
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFrom(w, r)
	if !ok {
		return
	}
	v, err := h.svc.Active(r.Context(), scope)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Get(r.Context(), pathID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, v)
}

// POST /versions/{id}/rollback
func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Rollback(r.Context(), pathID(r), authz.ActorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, v)
}

// POST /versions/{id}/assign device_id=…
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "malformed form", nil)
		return
	}
	deviceID, err := strconv.ParseUint(r.PostForm.Get("device_id"), 10, 64)
	if err != nil || deviceID == 0 {
		models.WriteValidationProblem(w, "select a device",
			map[string]string{"device_id": "device_id must be a number"}, nil)
		return
	}
	a, err := h.svc.Assign(r.Context(), uint(deviceID), pathID(r), authz.ActorFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, a)
}

// GET /devices/{id}/provisioning-log?limit=N
func (h *Handler) DeviceLog(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, err := h.svc.DeviceLog(r.Context(), pathID(r), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		models.WriteProblem(w, http.StatusNotFound, "Not Found", "requested item not found", nil)
		return
	}
	h.log.WithError(err).WithField("request_id", middleware.GetRequestID(r)).Error("versions request failed")
	models.WriteProblem(w, http.StatusInternalServerError, "Internal Server Error", "could not load versions", nil)
}

func scopeFrom(w http.ResponseWriter, r *http.Request) (repo.Scope, bool) {
	q := r.URL.Query()
	target, terr := strconv.ParseUint(q.Get("target_id"), 10, 64)
	devType, derr := strconv.ParseUint(q.Get("device_type_id"), 10, 64)
	if terr != nil || derr != nil {
		models.WriteProblem(w, http.StatusBadRequest, "Bad Request", "target_id and device_type_id are required", nil)
		return repo.Scope{}, false
	}
	return repo.Scope{TargetID: uint(target), DeviceTypeID: uint(devType)}, true
}

// pathID — {id} уже ограничен маршрутом цифрами.
func pathID(r *http.Request) uint {
	n, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return uint(n)
}

// RegisterRoutes — история версий за той же проверкой прав, что и мастер.
func RegisterRoutes(r *mux.Router, h *Handler, a authz.Authorizer, actorHeader string) {
	guard := authz.Require(a, actorHeader, authz.PermDevicesManage)

	v := r.PathPrefix("/versions").Subrouter()
	v.Use(guard)
	v.HandleFunc("", h.List).Methods(http.MethodGet)
	v.HandleFunc("/active", h.Active).Methods(http.MethodGet)
	v.HandleFunc("/{id:[0-9]+}", h.Get).Methods(http.MethodGet)
	v.HandleFunc("/{id:[0-9]+}/rollback", h.Rollback).Methods(http.MethodPost)
	v.HandleFunc("/{id:[0-9]+}/assign", h.Assign).Methods(http.MethodPost)

	d := r.PathPrefix("/devices").Subrouter()
	d.Use(guard)
	d.HandleFunc("/{id:[0-9]+}/provisioning-log", h.DeviceLog).Methods(http.MethodGet)
}
