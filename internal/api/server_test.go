// internal/api/server_test.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/modbus-uplink/internal/control"
	"github.com/tamzrod/modbus-uplink/internal/registry"
	"github.com/tamzrod/modbus-uplink/internal/scheduler"
	"github.com/tamzrod/modbus-uplink/internal/status"
)

type fakeController struct {
	devices    []registry.Device
	paused     bool
	registered []int
	removed    []int
	regErr     error
	rmErr      error
}

func (f *fakeController) RegisterDevice(_ context.Context, id int) error {
	f.registered = append(f.registered, id)
	return f.regErr
}

func (f *fakeController) RemoveDevice(id int) error {
	f.removed = append(f.removed, id)
	return f.rmErr
}

func (f *fakeController) Pause()                     { f.paused = true }
func (f *fakeController) Resume()                    { f.paused = false }
func (f *fakeController) Devices() []registry.Device { return f.devices }
func (f *fakeController) Schedule() scheduler.Status {
	return scheduler.Status{Paused: f.paused, Entries: []scheduler.Entry{{DeviceID: 1}}}
}

type fakeStatus map[uint8]status.Snapshot

func (f fakeStatus) Snapshot(id uint8) (status.Snapshot, bool) {
	s, ok := f[id]
	return s, ok
}

func do(t *testing.T, h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	ctl := &fakeController{devices: []registry.Device{{ID: 1}, {ID: 2}}}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("uplink_payloads_total 0\n")) })
	s := NewServer(Config{JWTSecret: "secret"}, ctl, nil, metrics)

	rec := do(t, s.Handler(), "GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, 2.0, body["devices"])
	assert.Equal(t, 1.0, body["entries"])

	rec = do(t, s.Handler(), "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "uplink_payloads_total")
}

func TestAuthRequired(t *testing.T) {
	s := NewServer(Config{JWTSecret: "secret"}, &fakeController{}, nil, nil)

	assert.Equal(t, http.StatusUnauthorized, do(t, s.Handler(), "GET", "/api/v1/devices", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s.Handler(), "GET", "/api/v1/devices", "garbage").Code)

	wrong, err := IssueToken("other", "ops", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(t, s.Handler(), "GET", "/api/v1/devices", wrong).Code)

	expired, err := IssueToken("secret", "ops", -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(t, s.Handler(), "GET", "/api/v1/devices", expired).Code)

	good, err := IssueToken("secret", "ops", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do(t, s.Handler(), "GET", "/api/v1/devices", good).Code)
}

func TestNoSecretMeansOpenAPI(t *testing.T) {
	s := NewServer(Config{}, &fakeController{}, nil, nil)
	assert.Equal(t, http.StatusOK, do(t, s.Handler(), "GET", "/api/v1/devices", "").Code)
}

func TestListDevicesIncludesStatus(t *testing.T) {
	ctl := &fakeController{devices: []registry.Device{
		{ID: 1, Sensors: []registry.SensorDescriptor{{SensorID: 0, Channels: 1}}},
		{ID: 2},
	}}
	st := fakeStatus{1: {Health: status.HealthOK, LastSeen: 42}}
	s := NewServer(Config{}, ctl, st, nil)

	rec := do(t, s.Handler(), "GET", "/api/v1/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out []struct {
		ID      uint8            `json:"id"`
		Sensors []interface{}    `json:"sensors"`
		Status  *status.Snapshot `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.NotNil(t, out[0].Status)
	assert.Equal(t, uint32(42), out[0].Status.LastSeen)
	assert.Len(t, out[0].Sensors, 1)
	assert.Nil(t, out[1].Status)
}

func TestRegisterRemoveDevice(t *testing.T) {
	ctl := &fakeController{}
	s := NewServer(Config{}, ctl, nil, nil)

	assert.Equal(t, http.StatusCreated, do(t, s.Handler(), "POST", "/api/v1/devices/7", "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, s.Handler(), "DELETE", "/api/v1/devices/7", "").Code)
	assert.Equal(t, []int{7}, ctl.registered)
	assert.Equal(t, []int{7}, ctl.removed)

	assert.Equal(t, http.StatusBadRequest, do(t, s.Handler(), "POST", "/api/v1/devices/abc", "").Code)

	ctl.regErr = control.ErrNotDiscovered
	assert.Equal(t, http.StatusBadGateway, do(t, s.Handler(), "POST", "/api/v1/devices/8", "").Code)

	ctl.regErr = control.ErrInvalidDevice
	assert.Equal(t, http.StatusBadRequest, do(t, s.Handler(), "POST", "/api/v1/devices/0", "").Code)

	ctl.rmErr = control.ErrUnknownDevice
	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), "DELETE", "/api/v1/devices/9", "").Code)
}

func TestPauseResume(t *testing.T) {
	ctl := &fakeController{}
	s := NewServer(Config{}, ctl, nil, nil)

	require.Equal(t, http.StatusOK, do(t, s.Handler(), "POST", "/api/v1/scheduler/pause", "").Code)
	assert.True(t, ctl.paused)

	rec := do(t, s.Handler(), "GET", "/api/v1/scheduler", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st scheduler.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Paused)

	require.Equal(t, http.StatusOK, do(t, s.Handler(), "POST", "/api/v1/scheduler/resume", "").Code)
	assert.False(t, ctl.paused)
}
