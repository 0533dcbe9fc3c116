package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvmcloud/deployer/interfaces"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func getTestConfig() *HTTPServerConfig {
	return &HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      testLog,
		DrainDuration:            10 * time.Millisecond,
		GracefulShutdownDuration: time.Second,
		ReadTimeout:              time.Second,
		WriteTimeout:             time.Second,
	}
}

func TestStubScriptProgression(t *testing.T) {
	app := common.HexToAddress("0x1111111111111111111111111111111111111111")

	handler := NewStubHandler()
	handler.Script(app, AppScript{Steps: []interfaces.AppInfo{
		{App: app, Status: interfaces.AppStateDeploying},
		{App: app, Status: interfaces.AppStateRunning, IP: "10.0.0.5"},
	}})

	srv := New(getTestConfig(), handler)
	ts := httptest.NewServer(srv.getRouter())
	defer ts.Close()

	fetch := func() interfaces.AppInfo {
		resp, err := http.Get(ts.URL + "/info?apps=" + app.Hex())
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var infos []interfaces.AppInfo
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
		require.Len(t, infos, 1)
		return infos[0]
	}

	assert.Equal(t, interfaces.AppStateDeploying, fetch().Status)
	assert.Equal(t, interfaces.AppStateRunning, fetch().Status)
	// Final step repeats.
	last := fetch()
	assert.Equal(t, interfaces.AppStateRunning, last.Status)
	assert.Equal(t, "10.0.0.5", last.IP)
}

func TestStubRateLimitInjection(t *testing.T) {
	app := common.HexToAddress("0x2222222222222222222222222222222222222222")

	handler := NewStubHandler()
	handler.Script(app, AppScript{
		Steps:          []interfaces.AppInfo{{App: app, Status: interfaces.AppStateRunning, IP: "10.0.0.7"}},
		RateLimitFirst: 2,
	})

	srv := New(getTestConfig(), handler)
	ts := httptest.NewServer(srv.getRouter())
	defer ts.Close()

	for i := 0; i < 2; i++ {
		resp, err := http.Get(ts.URL + "/info?apps=" + app.Hex())
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	}

	resp, err := http.Get(ts.URL + "/info?apps=" + app.Hex())
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStubEmptyScriptRemovesApp(t *testing.T) {
	app := common.HexToAddress("0x3333333333333333333333333333333333333333")

	handler := NewStubHandler()
	handler.Script(app, AppScript{Steps: []interfaces.AppInfo{
		{App: app, Status: interfaces.AppStateRunning, IP: "10.0.0.9"},
	}})
	handler.Script(app, AppScript{})

	srv := New(getTestConfig(), handler)
	ts := httptest.NewServer(srv.getRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/info?apps=" + app.Hex())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var infos []interfaces.AppInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	assert.Empty(t, infos)
}

func TestStubRejectsBadRequests(t *testing.T) {
	srv := New(getTestConfig(), NewStubHandler())
	ts := httptest.NewServer(srv.getRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/info")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/info?apps=notanaddress")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDrainAndUndrain(t *testing.T) {
	srv := New(getTestConfig(), NewStubHandler())
	ts := httptest.NewServer(srv.getRouter())
	defer ts.Close()

	status := func(path string) int {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusOK, status("/readyz"))
	assert.Equal(t, http.StatusOK, status("/drain"))
	assert.Equal(t, http.StatusServiceUnavailable, status("/readyz"))
	assert.Equal(t, http.StatusOK, status("/undrain"))
	assert.Equal(t, http.StatusOK, status("/readyz"))
}
