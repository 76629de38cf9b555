package powerwall

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeTransport answers requests from a path table and records what was sent
type fakeTransport struct {
	mu        sync.Mutex
	responses map[string]*Response
	err       error
	requests  []*Request
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responses: map[string]*Response{}}
}

func (f *fakeTransport) on(path string, status int, body string, cookies ...*http.Cookie) {
	f.responses[path] = &Response{StatusCode: status, Body: []byte(body), Cookies: cookies}
}

func (f *fakeTransport) Send(_ context.Context, req *Request) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if resp, ok := f.responses[req.Path]; ok {
		return resp, nil
	}
	return &Response{StatusCode: http.StatusNotFound}, nil
}

func (f *fakeTransport) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		paths = append(paths, r.Path)
	}
	return paths
}

func newFakeClient(t *testing.T, opts ...Option) (*Client, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	c, err := New("192.168.91.1", append([]Option{WithTransport(ft)}, opts...)...)
	require.NoError(t, err)
	return c, ft
}

// newGateway starts a TLS test server and a client pointed at it
func newGateway(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewTLSServer(handler)
	t.Cleanup(ts.Close)

	c, err := New(ts.URL, WithTimeout(2*time.Second))
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew(t *testing.T) {
	c, err := New("192.168.91.1")
	require.NoError(t, err)
	assert.Equal(t, "192.168.91.1", c.Host())
	assert.False(t, c.IsAuthenticated())

	_, pinned := c.PinnedVersion()
	assert.False(t, pinned)
}

func TestNew_PinnedVersion(t *testing.T) {
	c, err := New("192.168.91.1", WithPinnedVersion("21.44.1 c58c2df3"))
	require.NoError(t, err)

	v, pinned := c.PinnedVersion()
	assert.True(t, pinned)
	assert.Equal(t, Version{21, 44, 1}, v)

	_, err = New("192.168.91.1", WithPinnedVersion("garbage"))
	assert.True(t, IsInvalidVersion(err), "got %v", err)
}

func TestNew_InvalidEndpoint(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestGetCharge(t *testing.T) {
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathSOE, r.URL.Path)
		_, _ = w.Write([]byte(`{"percentage":87.5}`))
	})

	charge, err := c.GetCharge(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 87.5, charge)
}

func TestGetCharge_MissingPercentage(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathSOE, 200, `{}`)

	_, err := c.GetCharge(context.Background())
	require.True(t, IsMissingAttribute(err), "got %v", err)

	var pwErr *Error
	require.True(t, errors.As(err, &pwErr))
	assert.Equal(t, "soe", pwErr.Category)
	assert.Equal(t, "percentage", pwErr.Attribute)
}

func TestLogin(t *testing.T) {
	var loginBody map[string]any
	var statusCookie string

	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case PathLogin:
			require.Equal(t, http.MethodPost, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&loginBody))
			http.SetCookie(w, &http.Cookie{Name: "AuthCookie", Value: "cookie-token"})
			http.SetCookie(w, &http.Cookie{Name: "UserRecord", Value: "record"})
			writeJSON(w, map[string]any{
				"email":     "me@example.com",
				"firstname": "Tesla",
				"lastname":  "Energy",
				"roles":     []string{"Home_Owner"},
				"token":     "cookie-token",
				"provider":  "Basic",
				"loginTime": "2021-10-27T18:42:09.112347587+02:00",
			})
		case PathStatus:
			if ck, err := r.Cookie("AuthCookie"); err == nil {
				statusCookie = ck.Value
			}
			writeJSON(w, map[string]any{"version": "21.44.1"})
		default:
			http.NotFound(w, r)
		}
	})

	ctx := context.Background()
	login, err := c.Login(ctx, "me@example.com", "secret", false)
	require.NoError(t, err)
	assert.True(t, c.IsAuthenticated())

	assert.Equal(t, "customer", loginBody["username"])
	assert.Equal(t, "me@example.com", loginBody["email"])
	assert.Equal(t, "secret", loginBody["password"])
	assert.Equal(t, false, loginBody["force_sm_off"])

	email, err := login.Email()
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", email)

	roles, err := login.Roles()
	require.NoError(t, err)
	assert.Equal(t, []Role{RoleHomeOwner}, roles)

	loginTime, err := login.LoginTime()
	require.NoError(t, err)
	assert.Equal(t, 2021, loginTime.Year())

	_, err = c.GetVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cookie-token", statusCookie, "session cookie must be sent on later requests")
}

func TestLogin_TokenWithoutCookie(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathLogin, 200, `{"token":"abc123","email":"me@example.com"}`)
	ft.on(PathSOE, 200, `{"percentage":50}`)

	_, err := c.Login(context.Background(), "me@example.com", "secret", false)
	require.NoError(t, err)
	require.True(t, c.IsAuthenticated())

	_, err = c.GetCharge(context.Background())
	require.NoError(t, err)

	last := ft.requests[len(ft.requests)-1]
	require.Len(t, last.Cookies, 1)
	assert.Equal(t, "AuthCookie", last.Cookies[0].Name)
	assert.Equal(t, "abc123", last.Cookies[0].Value)
}

func TestLogin_TokenWrongType(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathLogin, 200, `{"token":12345,"email":"me@example.com"}`)

	_, err := c.Login(context.Background(), "me@example.com", "secret", false)
	require.True(t, IsInvalidAttribute(err), "got %v", err)
	assert.False(t, c.IsAuthenticated())
}

func TestLogin_AccessDenied(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathLogin, 401, `{"code":401,"error":"bad credentials","message":"Login Error"}`)

	_, err := c.Login(context.Background(), "me@example.com", "wrong", false)
	require.True(t, IsAccessDenied(err), "got %v", err)
	assert.False(t, c.IsAuthenticated())
	assert.Contains(t, err.Error(), "bad credentials")
}

func TestLogin_FailureKeepsExistingSession(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathLogin, 200, `{"token":"first"}`)
	_, err := c.Login(context.Background(), "me@example.com", "secret", false)
	require.NoError(t, err)

	ft.on(PathLogin, 403, ``)
	_, err = c.LoginAs(context.Background(), UserInstaller, "me@example.com", "wrong", true)
	require.True(t, IsAccessDenied(err))

	assert.True(t, c.IsAuthenticated())
	assert.Equal(t, "first", c.cookies[0].Value)
}

func TestLogout(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathLogin, 200, `{"token":"abc"}`)
	ft.on(PathLogout, 204, ``)

	ctx := context.Background()
	_, err := c.Login(ctx, "me@example.com", "secret", false)
	require.NoError(t, err)

	require.NoError(t, c.Logout(ctx))
	assert.False(t, c.IsAuthenticated())

	// Second logout has no session and sends nothing
	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, []string{PathLogin, PathLogout}, ft.paths())
}

func TestLogout_ExpiredSession(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathLogin, 200, `{"token":"abc"}`)
	ft.on(PathLogout, 401, ``)

	ctx := context.Background()
	_, err := c.Login(ctx, "me@example.com", "secret", false)
	require.NoError(t, err)

	assert.NoError(t, c.Logout(ctx))
	assert.False(t, c.IsAuthenticated())
}

func TestResponseProcessing(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"unauthorized", 401, ``, IsAccessDenied},
		{"forbidden", 403, `{"error":"forbidden"}`, IsAccessDenied},
		{"bad gateway", 502, ``, IsUnreachable},
		{"not found", 404, `not here`, IsAPIError},
		{"server error", 500, `{"msg":"boom"}`, IsAPIError},
		{"undecodable body", 200, `{"percentage":`, IsAPIError},
		{"error member", 200, `{"error":"not allowed"}`, IsAPIError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ft := newFakeClient(t)
			ft.on(PathSOE, tt.status, tt.body)

			_, err := c.GetCharge(context.Background())
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)
		})
	}
}

func TestResponseProcessing_BadGatewaySubtype(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathStatus, 502, ``)

	_, err := c.GetStatus(context.Background())

	var pwErr *Error
	require.True(t, errors.As(err, &pwErr))
	assert.Equal(t, NetworkErrorBadGateway, pwErr.NetworkSubtype)
}

func TestResponseProcessing_ServerErrorMessage(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathSOE, 500, `boom`)

	_, err := c.GetCharge(context.Background())

	var pwErr *Error
	require.True(t, errors.As(err, &pwErr))
	assert.Equal(t, 500, pwErr.StatusCode)
	assert.Equal(t, "boom", pwErr.Body)
	assert.Contains(t, pwErr.Message, "'500'")
}

func TestResponseProcessing_EmptyBody(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathSiteMasterRun, 202, ``)
	ft.on(PathSiteMasterStop, 200, `null`)

	assert.NoError(t, c.Run(context.Background()))
	assert.NoError(t, c.Stop(context.Background()))
}

func TestUnreachable_ClosedServer(t *testing.T) {
	ts := httptest.NewTLSServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c, err := New(url, WithTimeout(time.Second))
	require.NoError(t, err)

	_, err = c.GetCharge(context.Background())
	assert.True(t, IsUnreachable(err), "got %v", err)
}

func TestUnreachable_Timeout(t *testing.T) {
	done := make(chan struct{})
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	defer ts.Close()
	defer close(done)

	c, err := New(ts.URL, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = c.GetCharge(context.Background())
	assert.True(t, IsUnreachable(err), "got %v", err)
}

func TestUnreachable_TransportError(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.err = errors.New("connection reset")

	_, err := c.GetCharge(context.Background())
	require.True(t, IsUnreachable(err))

	var pwErr *Error
	require.True(t, errors.As(err, &pwErr))
	assert.Equal(t, "192.168.91.1", pwErr.Host)
	assert.Contains(t, pwErr.Message, PathSOE)
}

func TestGetDeviceType_PinnedLegacy(t *testing.T) {
	c, ft := newFakeClient(t, WithPinnedVersion("1.45.2"))
	ft.on(PathDeviceType, 200, `{"device_type":"hec"}`)

	dt, err := c.GetDeviceType(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DeviceTypeGW1, dt)
	assert.Equal(t, []string{PathDeviceType}, ft.paths())
}

func TestGetDeviceType_PinnedLive(t *testing.T) {
	c, ft := newFakeClient(t, WithPinnedVersion("1.46.0"))
	ft.on(PathStatus, 200, `{"version":"1.46.0","device_type":"teg"}`)

	dt, err := c.GetDeviceType(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DeviceTypeGW2, dt)
	assert.Equal(t, []string{PathStatus}, ft.paths())
}

func TestGetDeviceType_UnpinnedProbes(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathStatus, 200, `{"version":"1.45.1"}`)
	ft.on(PathDeviceType, 200, `{"device_type":"smc"}`)

	dt, err := c.GetDeviceType(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DeviceTypeSMC, dt)

	_, err = c.GetDeviceType(context.Background())
	require.NoError(t, err)

	// No caching without a pin: every call probes
	assert.Equal(t, []string{PathStatus, PathDeviceType, PathStatus, PathDeviceType}, ft.paths())
}

func TestGetDeviceType_UnpinnedLiveReusesStatus(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathStatus, 200, `{"version":"21.44.1 c58c2df3","device_type":"teg"}`)

	dt, err := c.GetDeviceType(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DeviceTypeGW2, dt)
	assert.Equal(t, []string{PathStatus}, ft.paths())
}

func TestGetDeviceType_PathsAgree(t *testing.T) {
	legacy, lt := newFakeClient(t, WithPinnedVersion("1.40.0"))
	lt.on(PathDeviceType, 200, `{"device_type":"teg"}`)

	live, vt := newFakeClient(t, WithPinnedVersion("1.50.0"))
	vt.on(PathStatus, 200, `{"device_type":"teg"}`)

	a, err := legacy.GetDeviceType(context.Background())
	require.NoError(t, err)
	b, err := live.GetDeviceType(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGetDeviceType_UnknownValue(t *testing.T) {
	c, ft := newFakeClient(t, WithPinnedVersion("1.50.0"))
	ft.on(PathStatus, 200, `{"device_type":"xyz"}`)

	_, err := c.GetDeviceType(context.Background())
	assert.True(t, IsUnknownEnumValue(err), "got %v", err)
}

func TestGetDeviceType_ProbeMissingVersion(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathStatus, 200, `{}`)

	_, err := c.GetDeviceType(context.Background())
	assert.True(t, IsMissingAttribute(err), "got %v", err)
}

func TestPinAndUnpinVersion(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathStatus, 200, `{"version":"1.50.1 abcdef","device_type":"teg"}`)

	v, err := c.DetectAndPinVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Version{1, 50, 1}, v)

	err = c.PinVersion("nope")
	assert.True(t, IsInvalidVersion(err))
	pinned, ok := c.PinnedVersion()
	assert.True(t, ok)
	assert.Equal(t, v, pinned, "malformed pin must keep the previous pin")

	c.UnpinVersion()
	_, ok = c.PinnedVersion()
	assert.False(t, ok)
}

func TestGetGridStatus(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathGridStatus, 200, `{"grid_status":"SystemGridConnected","grid_services_active":true}`)

	status, err := c.GetGridStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GridStatusConnected, status)

	active, err := c.IsGridServicesActive(context.Background())
	require.NoError(t, err)
	assert.True(t, active)

	ft.on(PathGridStatus, 200, `{"grid_status":"SystemSomethingNew"}`)
	_, err = c.GetGridStatus(context.Background())
	assert.True(t, IsUnknownEnumValue(err))
}

func TestGetSerialNumbers(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathPowerwalls, 200, `{"powerwalls":[{"PackageSerialNumber":"TG1"},{"PackageSerialNumber":"TG2"}]}`)

	serials, err := c.GetSerialNumbers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"TG1", "TG2"}, serials)

	ft.on(PathPowerwalls, 200, `{"powerwalls":[{"PackagePartNumber":"x"}]}`)
	_, err = c.GetSerialNumbers(context.Background())
	assert.True(t, IsMissingAttribute(err))
}

func TestScalarHelpers_MissingAttribute(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name      string
		path      string
		category  string
		attribute string
		call      func(c *Client) error
	}{
		{"charge", PathSOE, "soe", "percentage", func(c *Client) error {
			_, err := c.GetCharge(ctx)
			return err
		}},
		{"backup reserve", PathOperation, "operation", "backup_reserve_percent", func(c *Client) error {
			_, err := c.GetBackupReservePercentage(ctx)
			return err
		}},
		{"operation mode", PathOperation, "operation", "real_mode", func(c *Client) error {
			_, err := c.GetOperationMode(ctx)
			return err
		}},
		{"version", PathStatus, "status", "version", func(c *Client) error {
			_, err := c.GetVersion(ctx)
			return err
		}},
		{"vin", PathConfig, "config", "vin", func(c *Client) error {
			_, err := c.GetVIN(ctx)
			return err
		}},
		{"grid status", PathGridStatus, "grid_status", "grid_status", func(c *Client) error {
			_, err := c.GetGridStatus(ctx)
			return err
		}},
		{"grid services", PathGridStatus, "grid_status", "grid_services_active", func(c *Client) error {
			_, err := c.IsGridServicesActive(ctx)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ft := newFakeClient(t)
			ft.on(tt.path, 200, `{}`)

			err := tt.call(c)
			require.True(t, IsMissingAttribute(err), "got %v", err)

			var pwErr *Error
			require.True(t, errors.As(err, &pwErr))
			assert.Equal(t, tt.category, pwErr.Category)
			assert.Equal(t, tt.attribute, pwErr.Attribute)
			assert.Equal(t, []string{tt.path}, ft.paths())
		})
	}
}

func TestGetOperationMode_UnknownValue(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathOperation, 200, `{"real_mode":"storm_watch"}`)

	_, err := c.GetOperationMode(context.Background())
	assert.True(t, IsUnknownEnumValue(err), "got %v", err)
}

func TestGetDeviceType_LogsProbedVersion(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	c, ft := newFakeClient(t, WithLogger(zap.New(core)))
	ft.on(PathStatus, 200, `{"version":"1.45.1 abcdef"}`)
	ft.on(PathDeviceType, 200, `{"device_type":"hec"}`)

	_, err := c.GetDeviceType(context.Background())
	require.NoError(t, err)

	entries := logs.FilterMessage("Version gate resolved").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "1.45.1", fields["version"])
	assert.Equal(t, false, fields["pinned"])
}

func TestGetOperation(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathOperation, 200, `{"real_mode":"self_consumption","backup_reserve_percent":24.6}`)

	mode, err := c.GetOperationMode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OperationModeSelfConsumption, mode)

	reserve, err := c.GetBackupReservePercentage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 24.6, reserve)
}

func TestGetSolarsAndVIN(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathSolars, 200, `[{"brand":"Tesla","model":"Solar Inverter 7.6","power_rating_watts":7600}]`)
	ft.on(PathConfig, 200, `{"vin":"1232100-00-E--TG123456789ABG"}`)

	solars, err := c.GetSolars(context.Background())
	require.NoError(t, err)
	require.Len(t, solars, 1)
	brand, err := solars[0].Brand()
	require.NoError(t, err)
	assert.Equal(t, "Tesla", brand)
	rating, err := solars[0].PowerRatingWatts()
	require.NoError(t, err)
	assert.Equal(t, 7600.0, rating)

	vin, err := c.GetVIN(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1232100-00-E--TG123456789ABG", vin)

	ft.on(PathSolars, 200, `{"brand":"Tesla"}`)
	_, err = c.GetSolars(context.Background())
	assert.True(t, IsInvalidAttribute(err), "got %v", err)
}

func TestSetSiteName(t *testing.T) {
	var got map[string]any
	c := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, PathSiteName, r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.SetSiteName(context.Background(), "Garage"))
	assert.Equal(t, map[string]any{"site_name": "Garage"}, got)
}

func TestGetSiteMaster(t *testing.T) {
	c, ft := newFakeClient(t)
	ft.on(PathSiteMaster, 200, `{"running":true,"uptime":"166594s,","connected_to_tesla":true,"power_supply_mode":false,"status":"StatusUp"}`)

	sm, err := c.GetSiteMaster(context.Background())
	require.NoError(t, err)

	running, err := sm.IsRunning()
	require.NoError(t, err)
	assert.True(t, running)

	status, err := sm.Status()
	require.NoError(t, err)
	assert.Equal(t, SiteMasterStatusUp, status)

	psm, err := sm.IsPowerSupplyMode()
	require.NoError(t, err)
	assert.False(t, psm)
}
