package http

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NeuralTrust/gateguard/pkg/handlers/http/request"
	"github.com/NeuralTrust/gateguard/pkg/handlers/http/response"
	"github.com/NeuralTrust/gateguard/pkg/infra/scheduler"
	"github.com/NeuralTrust/gateguard/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestLimiter(t *testing.T) *ratelimit.Limiter {
	t.Helper()
	logger := quietLogger()
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)
	limiter, err := ratelimit.New(logger, []ratelimit.Rule{
		{Name: "auth", Path: "/api/v1/auth/*", Methods: []string{"POST"}, Window: 15 * time.Minute, MaxRequests: 5},
		{Name: "api", Path: "/api/*", Window: time.Minute, MaxRequests: 100},
	}, ratelimit.Options{Scheduler: sched, BlacklistDuration: time.Hour})
	require.NoError(t, err)
	return limiter
}

func newRateLimitAdminApp(t *testing.T) (*fiber.App, *ratelimit.Limiter) {
	t.Helper()
	logger := quietLogger()
	limiter := newTestLimiter(t)

	app := fiber.New()
	app.Get("/__/admin/rules", NewListRulesHandler(logger, limiter).Handle)
	app.Get("/__/admin/identifiers/:identifier", NewGetRateLimitStatusHandler(logger, limiter).Handle)
	app.Put("/__/admin/blacklist/:identifier", NewUpdateBlacklistHandler(logger, limiter).Handle)
	app.Delete("/__/admin/blacklist/:identifier", NewDeleteBlacklistHandler(logger, limiter).Handle)
	app.Put("/__/admin/whitelist/:identifier", NewUpdateWhitelistHandler(logger, limiter).Handle)
	app.Delete("/__/admin/whitelist/:identifier", NewDeleteWhitelistHandler(logger, limiter).Handle)
	return app, limiter
}

func call(t *testing.T, app *fiber.App, method, target, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestListRulesHandler(t *testing.T) {
	app, _ := newRateLimitAdminApp(t)

	status, data := call(t, app, fiber.MethodGet, "/__/admin/rules", "")
	require.Equal(t, fiber.StatusOK, status)

	var out response.ListRulesOutput
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.Rules, 2)
	assert.Equal(t, "auth", out.Rules[0].Name)
	assert.Equal(t, int64(900000), out.Rules[0].WindowMs)
	assert.Equal(t, []string{"POST"}, out.Rules[0].Methods)
	assert.Equal(t, []string{}, out.Rules[1].Methods)
}

func TestBlacklistHandlers(t *testing.T) {
	app, limiter := newRateLimitAdminApp(t)

	status, data := call(t, app, fiber.MethodPut, "/__/admin/blacklist/10.1.2.3", `{"duration":"30m"}`)
	require.Equal(t, fiber.StatusOK, status, string(data))

	var st ratelimit.Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.True(t, st.Blacklisted)
	require.NotNil(t, st.BlacklistExpiresAt)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), *st.BlacklistExpiresAt, 5*time.Second)

	res, err := limiter.CheckLimit(t.Context(), "10.1.2.3", "", "/api/v1/items", fiber.MethodGet)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	status, _ = call(t, app, fiber.MethodDelete, "/__/admin/blacklist/10.1.2.3", "")
	assert.Equal(t, fiber.StatusNoContent, status)
	status, _ = call(t, app, fiber.MethodDelete, "/__/admin/blacklist/10.1.2.3", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	res, err = limiter.CheckLimit(t.Context(), "10.1.2.3", "", "/api/v1/items", fiber.MethodGet)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestBlacklistHandler_DefaultDurationAndValidation(t *testing.T) {
	app, _ := newRateLimitAdminApp(t)

	status, data := call(t, app, fiber.MethodPut, "/__/admin/blacklist/user-7", "")
	require.Equal(t, fiber.StatusOK, status)
	var st ratelimit.Status
	require.NoError(t, json.Unmarshal(data, &st))
	require.NotNil(t, st.BlacklistExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *st.BlacklistExpiresAt, 5*time.Second)

	status, _ = call(t, app, fiber.MethodPut, "/__/admin/blacklist/user-7", `{"duration":"soon"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = call(t, app, fiber.MethodPut, "/__/admin/blacklist/user-7", `{"duration":"1000h"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = call(t, app, fiber.MethodPut, "/__/admin/blacklist/user-7", `{"until":"1h"}`)
	assert.Equal(t, fiber.StatusBadRequest, status, "unknown fields are rejected")
}

func TestBlacklistHandler_CompressedBody(t *testing.T) {
	app, _ := newRateLimitAdminApp(t)
	send := func(body []byte) int {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		_, err := w.Write(body)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(fiber.MethodPut, "/__/admin/blacklist/user-9", &buf)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Encoding", "gzip")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, send([]byte(`{"duration":"5m"}`)))

	padded := append([]byte(`{"duration":"5m"`), bytes.Repeat([]byte(" "), request.MaxBodySize)...)
	padded = append(padded, '}')
	assert.Equal(t, fiber.StatusBadRequest, send(padded))
}

func TestWhitelistHandlers(t *testing.T) {
	app, _ := newRateLimitAdminApp(t)

	status, data := call(t, app, fiber.MethodPut, "/__/admin/whitelist/monitor", "")
	require.Equal(t, fiber.StatusOK, status)
	var st ratelimit.Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.True(t, st.Whitelisted)

	status, _ = call(t, app, fiber.MethodDelete, "/__/admin/whitelist/monitor", "")
	assert.Equal(t, fiber.StatusNoContent, status)
	status, _ = call(t, app, fiber.MethodDelete, "/__/admin/whitelist/monitor", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestGetRateLimitStatusHandler(t *testing.T) {
	app, limiter := newRateLimitAdminApp(t)
	for i := 0; i < 3; i++ {
		_, err := limiter.CheckLimit(t.Context(), "alice", "", "/api/v1/auth/login", fiber.MethodPost)
		require.NoError(t, err)
	}

	status, data := call(t, app, fiber.MethodGet, "/__/admin/identifiers/alice", "")
	require.Equal(t, fiber.StatusOK, status)

	var st ratelimit.Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, "alice", st.Identifier)
	assert.False(t, st.Blacklisted)
	require.Len(t, st.Rules, 2)
	for _, rs := range st.Rules {
		assert.Equal(t, 3, rs.Count, rs.Rule)
	}
	assert.Equal(t, 2, st.Rules[0].Remaining)
}
