package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"

	"phoneprov/internal/db/dbtest"
)

func serve(r *mux.Router, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadiness(t *testing.T) {
	r := mux.NewRouter()
	RegisterRoutes(r, map[string]Pinger{"database": DBPinger(dbtest.New(t))})
	assert.Equal(t, http.StatusOK, serve(r, "/healthz").Code)
	assert.Equal(t, http.StatusOK, serve(r, "/readyz").Code)

	r = mux.NewRouter()
	RegisterRoutes(r, map[string]Pinger{"redis": PingerFunc(func(context.Context) error { return errors.New("refused") })})
	assert.Equal(t, http.StatusOK, serve(r, "/healthz").Code)
	rec := serve(r, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")
}
