package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadsync/internal/config"
)

func TestBuildRouter_OptionalServicesDisabled(t *testing.T) {
	portal := newFakePortal(t)
	c := testConfig(t, portal.srv.URL+"/rest/1/token/")
	c.Store.Driver = "none"

	env, err := initApp(context.Background(), c, "serve")
	require.NoError(t, err)
	defer env.Close()

	h := buildRouter(env, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/syncs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/send-welcome", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/schema", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "UF_CRM_STYLE")
}

func TestRunServer_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := &http.Server{
		Addr: addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- runServer(ctx, srv) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunServer_ListenError(t *testing.T) {
	srv := &http.Server{Addr: "bad-address"}
	err := runServer(context.Background(), srv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server listen")
}

func TestRunServer_RunsBackgroundLoops(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0"}
	started := make(chan struct{})
	stopped := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- runServer(ctx, srv, func(ctx context.Context) {
			close(started)
			<-ctx.Done()
			close(stopped)
		})
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	<-stopped
}

func TestNewChecker(t *testing.T) {
	prev := cfg
	t.Cleanup(func() { cfg = prev })

	cfg = testConfig(t, "https://b24.example.com/rest/1/x/")
	env := &appEnv{}
	assert.Nil(t, newChecker(env))

	cfg.Monitoring = config.MonitoringConfig{WebhookURL: "https://hooks.example.com/alerts"}
	assert.Nil(t, newChecker(env), "journal disabled")

	st, err := initStore(context.Background(), cfg.Store)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	env.Store = st
	assert.NotNil(t, newChecker(env))
}
