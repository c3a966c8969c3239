package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnera/gateway/internal/backend"
	"turnera/gateway/internal/mockscript"
	"turnera/gateway/internal/slotcache"
)

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func postJSON(t *testing.T, url, body string) map[string]any {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestEndToEnd_BookingFlow(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	script := mockscript.New(mockscript.WeekdaySlots(time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC), 1), quiet)

	var listingCalls atomic.Int32
	backendSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if bytes.Contains(body, []byte(`"getNextAvailable"`)) {
			listingCalls.Add(1)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		script.ServeHTTP(w, r)
	}))
	defer backendSrv.Close()

	cache := slotcache.New(time.Hour, slotcache.WithLogger(quiet))
	gw := New(backend.New(backendSrv.URL, backend.WithTimeout(5*time.Second)), cache, WithLogger(quiet))
	srv := httptest.NewServer(gw.Routes())
	defer srv.Close()

	out := getJSON(t, srv.URL+"/api/turnos")
	assert.Len(t, out["slots"], 6)
	getJSON(t, srv.URL+"/api/turnos")
	assert.Equal(t, int32(1), listingCalls.Load(), "second read served from cache")

	out = postJSON(t, srv.URL+"/api/reservar",
		`{"slotId":"20250310-0900","nombre":"Ana","apellido":"Paz","dni":"30111222","email":"ana@example.org","whatsapp":"1"}`)
	require.Equal(t, "success", out["status"])
	eventID := out["eventId"].(string)

	out = getJSON(t, srv.URL+"/api/turnos")
	assert.Len(t, out["slots"], 5, "booking drops the cached listing")
	assert.Equal(t, int32(2), listingCalls.Load())

	out = getJSON(t, srv.URL+"/api/usuario/30111222")
	assert.Equal(t, "Paz", out["user"].(map[string]any)["apellido"])

	out = getJSON(t, srv.URL+"/api/admin/turnos")
	assert.Len(t, out["appointments"], 1)

	out = postJSON(t, srv.URL+"/api/cancelar", `{"eventId":"`+eventID+`"}`)
	require.Equal(t, "success", out["status"])

	out = getJSON(t, srv.URL+"/api/turnos")
	assert.Len(t, out["slots"], 6)
	assert.Equal(t, int32(3), listingCalls.Load())

	// Business errors from the backend are relayed as-is.
	out = postJSON(t, srv.URL+"/api/cancelar", `{"eventId":"`+eventID+`"}`)
	assert.Equal(t, "error", out["status"])
}

func TestEndToEnd_BackendDown(t *testing.T) {
	quiet := log.New(io.Discard, "", 0)
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	gw := New(backend.New(deadURL), slotcache.New(time.Minute, slotcache.WithLogger(quiet)), WithLogger(quiet))
	srv := httptest.NewServer(gw.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/admin/derivaciones")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, map[string]string{"status": "error", "message": "No se pudieron cargar las derivaciones."}, out)
}
