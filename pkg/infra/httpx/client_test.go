package httpx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastHTTPClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Echo-Signature", r.Header.Get("X-Webhook-Signature"))
		w.Header().Set("X-Echo-Agent", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	client := NewFastHTTPClient(WithTimeout(2*time.Second), WithUserAgent("gateguard-test"))
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/hook", strings.NewReader(`{"ok":true}`))
	require.NoError(t, err)
	req.Header.Set("X-Webhook-Signature", "sha256=abc")

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(body))
	assert.Equal(t, "sha256=abc", resp.Header.Get("X-Echo-Signature"))
	assert.Equal(t, "gateguard-test", resp.Header.Get("X-Echo-Agent"))
}

func TestFastHTTPClient_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client := NewFastHTTPClient(WithTimeout(5 * time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Do(req)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
