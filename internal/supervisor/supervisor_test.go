package supervisor_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"couplesync/backend/internal/supervisor"
)

type mockServer struct {
	listenErr error
	stop      chan struct{}
	shutdowns atomic.Int32
}

func newMockServer(listenErr error) *mockServer {
	return &mockServer{listenErr: listenErr, stop: make(chan struct{})}
}

func (m *mockServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stop
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(context.Context) error {
	m.shutdowns.Add(1)
	close(m.stop)
	return nil
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	srv := newMockServer(nil)
	svc := supervisor.NewHTTPServerService(srv, time.Second)
	var hooked atomic.Bool
	svc.OnShutdown = func() { hooked.Store(true) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.Equal(t, int32(1), srv.shutdowns.Load())
	assert.True(t, hooked.Load())
	assert.Equal(t, "http-server", svc.String())
}

func TestHTTPServerService_ListenFailure(t *testing.T) {
	svc := supervisor.NewHTTPServerService(newMockServer(errors.New("address in use")), 0)

	err := svc.Serve(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
}

type countingService struct {
	runs atomic.Int32
}

func (s *countingService) Serve(ctx context.Context) error {
	if s.runs.Add(1) == 1 {
		return errors.New("first run fails")
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *countingService) String() string { return "counting" }

func TestTree_RestartsFailedService(t *testing.T) {
	var buf bytes.Buffer
	tree := supervisor.NewTree(zerolog.New(&buf), supervisor.TreeConfig{FailureBackoff: 10 * time.Millisecond})
	svc := &countingService{}
	tree.AddEngineService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	require.Eventually(t, func() bool { return svc.runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-errCh
	assert.Contains(t, buf.String(), "counting")
}

type failingService struct{}

func (failingService) Serve(context.Context) error { return errors.New("subscribe failed") }
func (failingService) String() string              { return "failing" }

func TestOneShot_FailureStopsTree(t *testing.T) {
	tree := supervisor.NewTree(zerolog.Nop(), supervisor.TreeConfig{})
	tree.AddEngineService(supervisor.OneShot{Service: failingService{}})

	select {
	case err := <-tree.ServeBackground(context.Background()):
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("tree kept running after a one-shot failure")
	}
}
