package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveLive(t *testing.T, s *Service) (int, statusBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	return decodeStatus(t, rec)
}

func serveReady(t *testing.T, s *Service) (int, statusBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return decodeStatus(t, rec)
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) (int, statusBody) {
	t.Helper()
	var body statusBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return rec.Code, body
}

func TestLiveEndpoint_NoChecks(t *testing.T) {
	s := New()

	code, body := serveLive(t, s)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Checks)
}

func TestReadyEndpoint_NotReadyUntilSet(t *testing.T) {
	s := New()

	code, body := serveReady(t, s)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Contains(t, body.Checks, "_readiness")

	s.SetReady(true)
	code, body = serveReady(t, s)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	// Graceful shutdown closes the gate again.
	s.SetReady(false)
	code, _ = serveReady(t, s)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestProbe_FailureThreshold(t *testing.T) {
	p := newProbe("flaky", time.Second, func(context.Context) error {
		return errors.New("connection refused")
	})

	// One or two consecutive failures keep the probe healthy.
	p.run(context.Background())
	assert.True(t, p.state.Load().healthy)
	p.run(context.Background())
	assert.True(t, p.state.Load().healthy)

	// The third flips it.
	p.run(context.Background())
	assert.False(t, p.state.Load().healthy)
	assert.EqualError(t, p.state.Load().err, "connection refused")
}

func TestProbe_SingleSuccessRecovers(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	p := newProbe("dep", time.Second, func(context.Context) error {
		if fail.Load() {
			return errors.New("down")
		}
		return nil
	})

	for range failAfter {
		p.run(context.Background())
	}
	require.False(t, p.state.Load().healthy)

	fail.Store(false)
	p.run(context.Background())
	assert.True(t, p.state.Load().healthy)
}

func TestProbe_Timeout(t *testing.T) {
	p := newProbe("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	for range failAfter {
		p.run(context.Background())
	}
	assert.False(t, p.state.Load().healthy)
}

func TestService_StartRunsProbes(t *testing.T) {
	var calls atomic.Int32
	s := New()
	s.AddReadinessCheck("counter", time.Second, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	s.Start(context.Background(), 10*time.Millisecond)
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestService_UnhealthyReadinessBlocksReady(t *testing.T) {
	s := New()
	s.AddReadinessCheck("db", 10*time.Millisecond, func(context.Context) error {
		return errors.New("no route to host")
	})
	s.SetReady(true)

	s.Start(context.Background(), 5*time.Millisecond)
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return !s.IsReady()
	}, time.Second, 5*time.Millisecond)

	code, body := serveReady(t, s)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "no route to host", body.Checks["db"])
}

func TestService_LivenessFailureReported(t *testing.T) {
	s := New()
	s.AddLivenessCheck("stuck", 10*time.Millisecond, func(context.Context) error {
		return errors.New("deadlock suspected")
	})
	s.SetReady(true)

	s.Start(context.Background(), 5*time.Millisecond)
	defer s.Stop()

	assert.Eventually(t, func() bool {
		code, _ := serveLive(t, s)
		return code == http.StatusServiceUnavailable
	}, time.Second, 5*time.Millisecond)

	// Liveness failures do not affect readiness.
	assert.True(t, s.IsReady())
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestPingCheck(t *testing.T) {
	assert.NoError(t, PingCheck(fakePinger{})(context.Background()))

	err := PingCheck(fakePinger{err: errors.New("dial tcp: refused")})(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}
