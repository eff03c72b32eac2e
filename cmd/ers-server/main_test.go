package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ers/ers/internal/config"
	"github.com/ers/ers/internal/domain/emergency"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                   "0",
		Env:                    "test",
		LogLevel:               "info",
		InitialBeds:            10,
		InitialAvgResponseTime: 8.5,
		SeedDemo:               true,
		SimulationSeed:         5,
		CORSOrigins:            []string{"http://localhost:3000"},
		RateLimitRPS:           1000,
		RateLimitBurst:         1000,
		BodyLimit:              "64K",
		RequestTimeout:         5 * time.Second,
	}
}

func startTestServer(t *testing.T, cfg *config.Config) (*server, *httptest.Server) {
	t.Helper()
	srv, err := newServer(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.telemetry.Shutdown(context.Background())
	})
	return srv, ts
}

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// metricLine returns the value column for a printed metrics label.
func metricLine(out, label string) string {
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, label) {
			return strings.TrimSpace(strings.TrimPrefix(line, label))
		}
	}
	return ""
}

func TestNewServer_HealthAndDemoSeed(t *testing.T) {
	_, ts := startTestServer(t, testConfig())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, err = http.Get(ts.URL + "/api/v1/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var m emergency.Metrics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	assert.Equal(t, emergency.Metrics{
		ActiveEmergenciesArriving: 2,
		CriticalCases:             2,
		AvailableBeds:             10,
		AvgResponseTime:           8.5,
	}, m)
}

func TestNewServer_SandboxRouteHiddenInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	_, ts := startTestServer(t, cfg)

	resp, err := http.Post(ts.URL+"/api/v1/sandbox/seed", "application/json", strings.NewReader(`{"demo":true}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNewServer_BodyLimit(t *testing.T) {
	_, ts := startTestServer(t, testConfig())

	big := `{"patient_name":"` + strings.Repeat("x", 70<<10) + `"}`
	resp, err := http.Post(ts.URL+"/api/v1/cases", "application/json", strings.NewReader(big))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestNewServer_LogsNeverCarryAccessCodes(t *testing.T) {
	var logs bytes.Buffer
	srv, err := newServer(context.Background(), testConfig(), zerolog.New(&logs))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.telemetry.Shutdown(context.Background()) })

	cases, _, err := srv.svc.ListCases(context.Background(), "", 0, 0)
	require.NoError(t, err)
	code := cases[0].AccessCode

	for _, path := range []string{
		"/api/v1/cases/by-code/" + code,
		"/api/v1/cases/by-code/" + strings.ToLower(code),
		"/api/v1/cases/by-code/QQ9Z7X",
	} {
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	out := logs.String()
	require.NotEmpty(t, out)
	assert.NotContains(t, out, "by-code/"+code)
	assert.NotContains(t, out, "by-code/"+strings.ToLower(code))
	assert.NotContains(t, out, `"`+code)
	assert.NotContains(t, out, "QQ9Z7X")
	assert.Contains(t, out, `"case_ref":"`+code[:2]+`****"`)
}

func TestNewServer_RateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 2
	srv, err := newServer(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.telemetry.Shutdown(context.Background()) })

	allowed := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
		req.Header.Set("X-Forwarded-For", "198.51.100."+strconv.Itoa(i))
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}

func TestNewServer_RejectsBadTrustedProxy(t *testing.T) {
	cfg := testConfig()
	cfg.TrustedProxies = []string{"nope"}
	_, err := newServer(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestCLI_CaseCommands(t *testing.T) {
	_, ts := startTestServer(t, testConfig())

	out, err := runCLI(t, "case", "add", "--server", ts.URL,
		"--name", "Ana Ruiz", "--age", "51", "--bp", "140/90", "--critical")
	require.NoError(t, err)
	assert.Contains(t, out, "Ana Ruiz")
	assert.Contains(t, out, "Arriving")

	out, err = runCLI(t, "case", "list", "--server", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "John Doe")
	assert.Contains(t, out, "Jane Smith")
	assert.Contains(t, out, "3 of 3 cases")

	out, err = runCLI(t, "metrics", "get", "--server", ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "3", metricLine(out, "Active emergencies arriving"))
	assert.Equal(t, "3", metricLine(out, "Critical cases"))
}

func TestCLI_StatusAndLookup(t *testing.T) {
	srv, ts := startTestServer(t, testConfig())
	cases, _, err := srv.svc.ListCases(context.Background(), "", 0, 0)
	require.NoError(t, err)
	john := cases[0]

	out, err := runCLI(t, "case", "status", "--server", ts.URL, john.ID, "Admitted")
	require.NoError(t, err)
	assert.Contains(t, out, "Admitted")
	assert.Contains(t, out, "Access code: "+john.AccessCode)

	out, err = runCLI(t, "case", "lookup", "--server", ts.URL, strings.ToLower(john.AccessCode))
	require.NoError(t, err)
	assert.Contains(t, out, "John Doe")

	_, err = runCLI(t, "case", "lookup", "--server", ts.URL, "ABC")
	assert.Error(t, err)

	_, err = runCLI(t, "case", "status", "--server", ts.URL, john.ID, "Discharged")
	assert.Error(t, err)
}

func TestCLI_MetricsSet(t *testing.T) {
	_, ts := startTestServer(t, testConfig())

	out, err := runCLI(t, "metrics", "set", "--server", ts.URL, "--beds", "4")
	require.NoError(t, err)
	assert.Equal(t, "4", metricLine(out, "Available beds"))
	assert.Equal(t, "2", metricLine(out, "Critical cases"))

	_, err = runCLI(t, "metrics", "set", "--server", ts.URL)
	assert.Error(t, err)
}

func TestCLI_Simulate(t *testing.T) {
	out, err := runCLI(t, "simulate", "--bookings", "6", "--beds", "10", "--seed", "42")
	require.NoError(t, err)

	assert.Contains(t, out, "Patient 6")
	assert.Equal(t, 3, strings.Count(out, "Released from ER"))
	assert.Equal(t, "3", metricLine(out, "Active emergencies arriving"))
	assert.Equal(t, "10", metricLine(out, "Available beds"))
	assert.Equal(t, "8.5 min", metricLine(out, "Avg response time"))
}

func TestCLI_SimulateRejectsNegative(t *testing.T) {
	_, err := runCLI(t, "simulate", "--bookings", "-1")
	assert.Error(t, err)
}
