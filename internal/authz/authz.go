// Package authz — проверка прав на входах мастера и управления устройствами.
package authz

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

const PermDevicesManage = "devices.manage"

type Authorizer interface {
	HasPermission(ctx context.Context, actor, perm string) bool
}

// Static — список менеджеров из конфига. Пустой список — любой
// аутентифицированный прокси пользователь.
type Static struct {
	managers map[string]struct{}
}

func NewStatic(managers []string) *Static {
	s := &Static{managers: make(map[string]struct{}, len(managers))}
	for _, m := range managers {
		if m = strings.TrimSpace(m); m != "" {
			s.managers[m] = struct{}{}
		}
	}
	return s
}

func (s *Static) HasPermission(_ context.Context, actor, perm string) bool {
	if actor == "" || perm != PermDevicesManage {
		return false
	}
	if len(s.managers) == 0 {
		return true
	}
	_, ok := s.managers[actor]
	return ok
}

type ctxKey struct{}

// ActorFrom — пользователь, прошедший Require.
func ActorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// Require читает пользователя из заголовка доверенного прокси и отсекает
// запрос до любой логики. Ответ фиксированный.
func Require(a Authorizer, header, perm string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := strings.TrimSpace(r.Header.Get(header))
			if !a.HasPermission(r.Context(), actor, perm) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
