package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/icxcommander/icxcommander/internal/config"
	"github.com/icxcommander/icxcommander/internal/database"
	"github.com/icxcommander/icxcommander/internal/identity"
	"github.com/icxcommander/icxcommander/internal/inventory"
	"github.com/icxcommander/icxcommander/internal/ippool"
	"github.com/icxcommander/icxcommander/internal/ops"
	"github.com/icxcommander/icxcommander/internal/provisioner"
	"github.com/icxcommander/icxcommander/internal/terminal"
	"github.com/icxcommander/icxcommander/internal/topology"
)

// deadTransport refuses every dial; the API tests never reach a device
type deadTransport struct{}

func (deadTransport) Dial(ip, username, password string, timeout time.Duration) (terminal.Session, error) {
	return nil, fmt.Errorf("%w: %s", terminal.ErrUnreachable, ip)
}

type nopRecorder struct{}

func (nopRecorder) RecordPollCycle(time.Duration)                       {}
func (nopRecorder) RecordSSHConnect(string)                             {}
func (nopRecorder) RecordCredentialAttempt(string)                      {}
func (nopRecorder) RecordConfigOperation(string, string, time.Duration) {}
func (nopRecorder) SetFleetCounts(int, int, int)                        {}
func (nopRecorder) SSHSessionOpened()                                   {}
func (nopRecorder) SSHSessionClosed()                                   {}

type testApp struct {
	router *gin.Engine
	inv    *inventory.Inventory
	prov   *provisioner.Provisioner
	store  *database.Store
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	cfg := &config.Config{}
	cfg.Seed.Credentials = []config.Credential{{Username: "super", Password: "sp-admin"}}
	cfg.Seed.ManagementVLAN = 10
	cfg.Provisioner.PollInterval = time.Hour
	cfg.Provisioner.StopTimeout = 2 * time.Second
	cfg.Provisioner.SnapshotEvery = 100

	db, err := database.Initialize(":memory:", 1, 1)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	store := database.NewStore(db, logger)

	inv := inventory.New(logger)
	pool, err := ippool.New("192.168.10.0/24", "192.168.10.1")
	require.NoError(t, err)

	prov := provisioner.New(
		cfg, deadTransport{}, inv, pool,
		ops.New(time.Second, logger),
		topology.NewDiscoverer(topology.Options{}, logger),
		identity.New(),
		store, nopRecorder{}, "", logger,
	)
	t.Cleanup(func() { prov.Stop() })

	router := gin.New()
	h := NewHandler(cfg, inv, prov, store, logger)
	h.RegisterRoutes(router.Group("/api/v1"))

	return &testApp{router: router, inv: inv, prov: prov, store: store}
}

func (app *testApp) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	var body map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestGetInventory(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, app.inv.RegisterSwitch(inventory.Switch{
		Identity: identity.Identity{MAC: "609c.9f1e.aa00", IP: "10.0.0.5", Model: "ICX7150-48P"},
		State:    inventory.StateDiscovered,
		IsSeed:   true,
	}))

	w, body := app.do(t, http.MethodGet, "/api/v1/inventory")
	assert.Equal(t, http.StatusOK, w.Code)

	switches, ok := body["switches"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, switches, "609c.9f1e.aa00")
}

func TestGetSwitchByMAC(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, app.inv.RegisterSwitch(inventory.Switch{
		Identity: identity.Identity{MAC: "609c.9f1e.aa00", IP: "10.0.0.5"},
		State:    inventory.StateFullyConfigured,
	}))

	w, body := app.do(t, http.MethodGet, "/api/v1/inventory/switches/609c.9f1e.aa00")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fully_configured", body["state"])

	w, body = app.do(t, http.MethodGet, "/api/v1/inventory/switches/dead.beef.0000")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Switch not found", body["error"])
}

func TestGetStatus(t *testing.T) {
	app := newTestApp(t)
	require.NoError(t, app.inv.RegisterSwitch(inventory.Switch{
		Identity: identity.Identity{MAC: "609c.9f1e.aa00", IP: "10.0.0.5"},
		State:    inventory.StateFullyConfigured,
	}))
	require.NoError(t, app.inv.RegisterSwitch(inventory.Switch{
		Identity: identity.Identity{MAC: "609c.9f1e.bb00", IP: "10.0.0.7"},
		State:    inventory.StateError,
	}))

	w, body := app.do(t, http.MethodGet, "/api/v1/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["running"])
	assert.Equal(t, float64(2), body["switches_discovered"])
	assert.Equal(t, float64(1), body["switches_configured"])
	assert.Equal(t, float64(1), body["errors"])
}

func TestStartStopProvisioner(t *testing.T) {
	app := newTestApp(t)

	w, body := app.do(t, http.MethodPost, "/api/v1/provisioner/start")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["running"])
	assert.Equal(t, true, body["changed"])

	_, body = app.do(t, http.MethodPost, "/api/v1/provisioner/start")
	assert.Equal(t, false, body["changed"], "second start is a no-op")

	_, body = app.do(t, http.MethodPost, "/api/v1/provisioner/stop")
	assert.Equal(t, false, body["running"])
	assert.Equal(t, true, body["changed"])

	_, body = app.do(t, http.MethodPost, "/api/v1/provisioner/stop")
	assert.Equal(t, false, body["changed"], "second stop is a no-op")
}

func TestListEvents(t *testing.T) {
	app := newTestApp(t)
	app.store.RecordEvent("cycle-1", "609c.9f1e.aa00", "10.0.0.5", "switch_discovered", "", true)
	app.store.RecordEvent("cycle-1", "609c.9f1e.bb00", "10.0.0.7", "switch_discovered", "", true)
	app.store.RecordEvent("cycle-2", "609c.9f1e.bb00", "10.0.0.7", "base_config_applied", "", true)

	w, body := app.do(t, http.MethodGet, "/api/v1/events")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["count"])

	_, body = app.do(t, http.MethodGet, "/api/v1/events?mac=609c.9f1e.bb00")
	assert.Equal(t, float64(2), body["count"])

	_, body = app.do(t, http.MethodGet, "/api/v1/events?limit=1")
	assert.Equal(t, float64(1), body["count"])
	events := body["events"].([]interface{})
	first := events[0].(map[string]interface{})
	assert.Equal(t, "base_config_applied", first["event_type"], "newest first")
}

func TestGetLatestSnapshot(t *testing.T) {
	app := newTestApp(t)

	w, body := app.do(t, http.MethodGet, "/api/v1/snapshots/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No snapshot recorded", body["error"])

	require.NoError(t, app.store.SaveSnapshot(`{"switches":{},"aps":{}}`, 3, 2))

	w, body = app.do(t, http.MethodGet, "/api/v1/snapshots/latest")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["switch_count"])
	assert.Equal(t, float64(2), body["ap_count"])
}
