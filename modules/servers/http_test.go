package servers_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Deepreo/kronos/core"
	"github.com/Deepreo/kronos/errors"
	"github.com/Deepreo/kronos/modules/auth"
	"github.com/Deepreo/kronos/modules/servers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type triggerRequest struct {
	Name string `params:"name"`
	Cron string `json:"cron"`
}

func (r *triggerRequest) Validate() error {
	if r.Cron == "" {
		return errors.New("cron is required")
	}
	return nil
}

type triggerHandler struct {
	err error
}

func (h triggerHandler) Handle(_ context.Context, req *triggerRequest) (map[string]string, error) {
	if h.err != nil {
		return nil, h.err
	}
	return map[string]string{"name": req.Name, "cron": req.Cron}, nil
}

type response struct {
	Success bool              `json:"success"`
	Data    map[string]string `json:"data"`
	Error   *core.APIError    `json:"error"`
}

func newServer(t *testing.T) *servers.HttpServer {
	t.Helper()
	s, err := servers.NewHttpServer()
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *servers.HttpServer, req *http.Request) (int, response) {
	t.Helper()
	res, err := s.GetApp().Test(req, -1)
	require.NoError(t, err)
	defer res.Body.Close()
	var body response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return res.StatusCode, body
}

func putTrigger(name, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPut, "/schedules/"+name+"/trigger", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRegister_ParsesAndResponds(t *testing.T) {
	s := newServer(t)
	core.RegisterEndpoint[*triggerRequest, map[string]string](s, http.MethodPut, "/schedules/:name/trigger", triggerHandler{})

	status, body := do(t, s, putTrigger("report", `{"cron":"0 0 * * * ?"}`))
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)
	assert.Equal(t, map[string]string{"name": "report", "cron": "0 0 * * * ?"}, body.Data)
}

func TestRegister_ValidationFailure(t *testing.T) {
	s := newServer(t)
	core.RegisterEndpoint[*triggerRequest, map[string]string](s, http.MethodPut, "/schedules/:name/trigger", triggerHandler{})

	status, body := do(t, s, putTrigger("report", `{}`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, "cron is required", body.Error.Message)

	status, body = do(t, s, putTrigger("report", `{"cron":`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", body.Error.Code)
}

func TestRegister_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", errors.ValidationError(errors.New("bad")), http.StatusBadRequest},
		{"domain", errors.DomainError(errors.New("bad")), http.StatusBadRequest},
		{"auth", errors.AuthError(errors.New("who")), http.StatusUnauthorized},
		{"permission", errors.PermissionError(errors.New("no")), http.StatusForbidden},
		{"not found", core.ErrJobNotFound, http.StatusNotFound},
		{"conflict", core.ErrDuplicateJobName, http.StatusConflict},
		{"application", core.ErrSchedulerStopped, http.StatusServiceUnavailable},
		{"infrastructure", errors.InfraError(errors.New("redis down")), http.StatusBadGateway},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t)
			core.RegisterEndpoint[*triggerRequest, map[string]string](s, http.MethodPut, "/schedules/:name/trigger", triggerHandler{err: tt.err})

			status, body := do(t, s, putTrigger("report", `{"cron":"* * * * * ?"}`))
			assert.Equal(t, tt.status, status)
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
		})
	}
}

func TestRegister_HidesInfrastructureDetails(t *testing.T) {
	s := newServer(t)
	core.RegisterEndpoint[*triggerRequest, map[string]string](s, http.MethodPut, "/schedules/:name/trigger",
		triggerHandler{err: errors.InfraError(errors.New("dial tcp 10.0.0.1:6379"))})

	_, body := do(t, s, putTrigger("report", `{"cron":"* * * * * ?"}`))
	require.NotNil(t, body.Error)
	assert.Equal(t, "Internal Server Error", body.Error.Message)
	assert.NotContains(t, body.Error.Message, "10.0.0.1")
}

func TestUse_AuthMiddleware(t *testing.T) {
	provider, err := auth.NewJWTTokenProvider(auth.Config{SecretKey: "test-secret-key-that-is-32-chars-long"}, nil)
	require.NoError(t, err)
	token, err := provider.GenerateToken("ops", "operator")
	require.NoError(t, err)

	s := newServer(t)
	s.Use(auth.Middleware(provider, nil, "operator"))
	core.RegisterEndpoint[*triggerRequest, map[string]string](s, http.MethodPut, "/schedules/:name/trigger", triggerHandler{})

	status, body := do(t, s, putTrigger("report", `{"cron":"* * * * * ?"}`))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "MISSING_TOKEN", body.Error.Code)

	req := putTrigger("report", `{"cron":"* * * * * ?"}`)
	req.Header.Set("Authorization", "Bearer "+token)
	status, body = do(t, s, req)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)
}

func TestMount(t *testing.T) {
	s := newServer(t)
	s.Mount("/metrics", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "kronos_job_runs_total 1\n")
	}))

	res, err := s.GetApp().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(raw), "kronos_job_runs_total 1")
}

func TestNewHttpServer_InvalidConfig(t *testing.T) {
	_, err := servers.NewHttpServer(servers.WithConfig(&servers.HttpServerConfig{ReadTimeout: "fast"}))
	assert.Error(t, err)

	_, err = servers.NewHttpServer(servers.WithConfig(&servers.HttpServerConfig{
		Features: servers.Features{RateLimit: servers.RateLimit{Enabled: true, Max: 10, Expiration: "often"}},
	}))
	assert.Error(t, err)
}
