package provisioning

import (
	"net/http"

	"github.com/gorilla/mux"
)

const macPattern = `[0-9A-Fa-f:\-]+`

// RegisterRoutes — стадии регистрируются последними: /{mac}.cfg шире прочих путей.
func RegisterRoutes(r *mux.Router, h *Handler, creds Credentials) {
	sub := r.NewRoute().Subrouter()
	sub.Use(h.Recover, BasicAuth(creds))

	sub.HandleFunc("/boot", h.Boot).Methods(http.MethodGet)
	sub.HandleFunc("/{mac:"+macPattern+"}.boot", h.Boot).Methods(http.MethodGet)
	sub.HandleFunc("/staging/certificates", h.Certificates).Methods(http.MethodGet)
	sub.HandleFunc("/staging/certificates/{file}", h.CertificateFile).Methods(http.MethodGet)
	sub.HandleFunc("/provisioning/{mac:"+macPattern+"}.cfg", h.DeviceConfig).Methods(http.MethodGet)
	sub.HandleFunc("/{mac:"+macPattern+"}.cfg", h.StagingConfig).Methods(http.MethodGet)
}
