package provisioning

import (
	"crypto/subtle"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// Credentials — общий статический логин стадий. Пустой пароль и пустой hash —
// стадии открыты (пилотные внедрения).
type Credentials struct {
	Username     string
	Password     string
	PasswordHash string // bcrypt, приоритетнее Password
}

func (c Credentials) Enabled() bool { return c.Password != "" || c.PasswordHash != "" }

func (c Credentials) check(user, pass string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(c.Username)) == 1
	if c.PasswordHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(pass)) == nil && userOK
	}
	return subtle.ConstantTimeCompare([]byte(pass), []byte(c.Password)) == 1 && userOK
}

// BasicAuth — HTTP Basic для всех стадий одинаково.
func BasicAuth(c Credentials) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !c.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			user, pass, ok := r.BasicAuth()
			if !ok || !c.check(user, pass) {
				w.Header().Set("WWW-Authenticate", `Basic realm="provisioning", charset="UTF-8"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
