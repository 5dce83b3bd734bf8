package server_test

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agubarev/aegis/internal/core"
	"github.com/agubarev/aegis/internal/server"
	"github.com/agubarev/aegis/pkg/baseline"
	"github.com/agubarev/aegis/pkg/device"
	"github.com/agubarev/aegis/pkg/enrollment"
	"github.com/agubarev/aegis/pkg/security/session"
	"github.com/agubarev/aegis/pkg/telemetry"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type envelope struct {
	Result jsoniter.RawMessage `json:"result"`
	Error  *struct {
		Key     string `json:"key"`
		Message string `json:"msg"`
	} `json:"error"`
}

type harness struct {
	t   *testing.T
	c   *core.Core
	srv *httptest.Server
}

func newHarness(t *testing.T) *harness {
	cfg, err := core.ConfigForTesting()
	require.NoError(t, err)

	c, err := core.NewCoreForTesting(cfg)
	require.NoError(t, err)

	reg, err := server.NewRegistry()
	require.NoError(t, err)

	return &harness{
		t:   t,
		c:   c,
		srv: httptest.NewServer(server.NewRouter(c, reg, server.Options{CORSOrigins: []string{"*"}})),
	}
}

func (h *harness) close() {
	h.srv.Close()
	h.c.Close()
}

func (h *harness) session(ident session.Identity, role session.Role) string {
	signed, _, err := h.c.Sessions().Issue(ident, role, time.Hour)
	require.NoError(h.t, err)

	return signed
}

func (h *harness) do(method, path, auth string, body interface{}, dest interface{}) int {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(h.t, err)
	}

	req, err := http.NewRequest(method, h.srv.URL+path, bytes.NewReader(payload))
	require.NoError(h.t, err)

	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	require.NoError(h.t, err)

	if dest != nil {
		env := envelope{}
		require.NoError(h.t, json.Unmarshal(raw, &env), string(raw))
		if env.Error == nil {
			require.NoError(h.t, json.Unmarshal(env.Result, dest), string(raw))
		}
	}

	return resp.StatusCode
}

func TestEnrollIngestAndList(t *testing.T) {
	a := assert.New(t)

	h := newHarness(t)
	defer h.close()

	accountID := uuid.New()
	owner := h.session(session.Identity{ID: uuid.New(), AccountID: accountID}, session.ROwner)

	// ====================================================================================
	// operator issues a token, an agent enrolls with it
	// ====================================================================================
	issued := enrollment.Issued{}
	a.Equal(http.StatusCreated, h.do(http.MethodPost, "/api/v1/tokens", "Bearer "+owner, map[string]string{"ttl": "10m"}, &issued))
	a.NotEmpty(issued.Token)

	enrolled := enrollment.Enrolled{}
	a.Equal(http.StatusCreated, h.do(http.MethodPost, "/api/v1/enroll", "", map[string]string{
		"token":       issued.Token,
		"fingerprint": "host-0001-aa:bb:cc",
	}, &enrolled))
	a.Equal(accountID, enrolled.AccountID)
	a.NotEmpty(enrolled.Credential)

	// the token is single-use
	a.Equal(http.StatusConflict, h.do(http.MethodPost, "/api/v1/enroll", "", map[string]string{
		"token":       issued.Token,
		"fingerprint": "host-0002-aa:bb:cc",
	}, nil))

	// ====================================================================================
	// telemetry
	// ====================================================================================
	e := telemetry.Event{}
	a.Equal(http.StatusAccepted, h.do(http.MethodPost, "/api/v1/telemetry", "Device "+enrolled.Credential, map[string]interface{}{
		"kind":      "command",
		"timestamp": time.Now().UTC(),
		"payload":   map[string]string{"command": "rm -rf /"},
	}, &e))
	a.Equal(enrolled.DeviceID, e.DeviceID)
	a.Equal("critical", e.Severity.String())
	a.Nil(e.Score)

	a.Equal(http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/telemetry", "Device "+enrolled.Credential, map[string]interface{}{
		"kind":      "command",
		"timestamp": time.Now().UTC(),
		"payload":   map[string]string{"command": ""},
	}, nil))

	a.Equal(http.StatusUnauthorized, h.do(http.MethodPost, "/api/v1/telemetry", "", map[string]interface{}{
		"kind": "command",
	}, nil))

	// ====================================================================================
	// history
	// ====================================================================================
	var events []telemetry.Event
	a.Equal(http.StatusOK, h.do(http.MethodGet, "/api/v1/events?limit=10", "Bearer "+owner, nil, &events))
	require.Len(t, events, 1)
	a.Equal(e.ID, events[0].ID)

	deviceUser := h.session(session.Identity{ID: uuid.New(), AccountID: accountID, DeviceID: uuid.New()}, session.RDeviceUser)
	events = nil
	a.Equal(http.StatusOK, h.do(http.MethodGet, "/api/v1/events", "Bearer "+deviceUser, nil, &events))
	a.Len(events, 0)

	a.Equal(http.StatusForbidden, h.do(http.MethodGet, "/api/v1/events?device_id="+enrolled.DeviceID.String(), "Bearer "+deviceUser, nil, nil))
	a.Equal(http.StatusBadRequest, h.do(http.MethodGet, "/api/v1/events?limit=abc", "Bearer "+owner, nil, nil))

	// ====================================================================================
	// metrics
	// ====================================================================================
	resp, err := http.Get(h.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := ioutil.ReadAll(resp.Body)
	require.NoError(t, err)
	a.Equal(http.StatusOK, resp.StatusCode)
	a.True(strings.Contains(string(raw), "aegis_telemetry_events_total"))
}

func TestSessionEnforcement(t *testing.T) {
	a := assert.New(t)

	h := newHarness(t)
	defer h.close()

	accountID := uuid.New()
	deviceUser := h.session(session.Identity{ID: uuid.New(), AccountID: accountID, DeviceID: uuid.New()}, session.RDeviceUser)

	a.Equal(http.StatusUnauthorized, h.do(http.MethodPost, "/api/v1/tokens", "", nil, nil))
	a.Equal(http.StatusUnauthorized, h.do(http.MethodPost, "/api/v1/tokens", "Bearer garbage", nil, nil))
	a.Equal(http.StatusForbidden, h.do(http.MethodPost, "/api/v1/tokens", "Bearer "+deviceUser, nil, nil))
	a.Equal(http.StatusUnauthorized, h.do(http.MethodGet, "/api/v1/events", "", nil, nil))
	a.Equal(http.StatusUnauthorized, h.do(http.MethodGet, "/api/v1/alerts/stream", "", nil, nil))
}

func TestRevokeAndResetBaseline(t *testing.T) {
	a := assert.New(t)

	h := newHarness(t)
	defer h.close()

	accountID := uuid.New()
	admin := h.session(session.Identity{ID: uuid.New(), AccountID: accountID}, session.RAdmin)
	stranger := h.session(session.Identity{ID: uuid.New(), AccountID: uuid.New()}, session.ROwner)

	issued := enrollment.Issued{}
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/v1/tokens", "Bearer "+admin, nil, &issued))

	enrolled := enrollment.Enrolled{}
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/v1/enroll", "", map[string]string{
		"token":       issued.Token,
		"fingerprint": "workstation-42",
	}, &enrolled))

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/telemetry", "Device "+enrolled.Credential, map[string]interface{}{
			"kind":      "metric",
			"timestamp": time.Now().UTC(),
			"payload":   map[string]float64{"cpu": 12, "memory": 40, "disk": 55},
		}, nil))
	}

	p, err := h.c.Baseline().Profile(context.Background(), enrolled.DeviceID)
	require.NoError(t, err)
	a.EqualValues(3, p.Observations)

	// ====================================================================================
	// foreign accounts can't see the device
	// ====================================================================================
	path := "/api/v1/devices/" + enrolled.DeviceID.String()
	a.Equal(http.StatusNotFound, h.do(http.MethodDelete, path+"/baseline", "Bearer "+stranger, nil, nil))
	a.Equal(http.StatusNotFound, h.do(http.MethodPost, path+"/revoke", "Bearer "+stranger, nil, nil))
	a.Equal(http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/devices/not-a-uuid/revoke", "Bearer "+admin, nil, nil))

	var devices []device.Device
	a.Equal(http.StatusOK, h.do(http.MethodGet, "/api/v1/devices", "Bearer "+admin, nil, &devices))
	a.Len(devices, 1)

	// ====================================================================================
	// baseline reset
	// ====================================================================================
	reset := baseline.Profile{}
	a.Equal(http.StatusOK, h.do(http.MethodDelete, path+"/baseline", "Bearer "+admin, nil, &reset))
	a.EqualValues(0, reset.Observations)

	// ====================================================================================
	// revocation is terminal
	// ====================================================================================
	revoked := device.Device{}
	a.Equal(http.StatusOK, h.do(http.MethodPost, path+"/revoke", "Bearer "+admin, nil, &revoked))
	a.Equal(device.SRevoked, revoked.Status)

	a.Equal(http.StatusForbidden, h.do(http.MethodPost, "/api/v1/telemetry", "Device "+enrolled.Credential, map[string]interface{}{
		"kind":      "metric",
		"timestamp": time.Now().UTC(),
		"payload":   map[string]float64{"cpu": 12, "memory": 40, "disk": 55},
	}, nil))
}
