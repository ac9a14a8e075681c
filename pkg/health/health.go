// Package health exposes liveness and readiness probes over HTTP.
//
// Probes are registered once at startup and then driven by a single
// supervisor goroutine: every tick it runs all probes concurrently, each
// under its own timeout. A probe flips to unhealthy only after failing
// several consecutive runs, so a single slow database ping does not take
// the service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes a single dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// failAfter is the number of consecutive failures before a probe is
// considered unhealthy. A single success flips it back.
const failAfter = 3

// probeState is the snapshot published after every probe run.
type probeState struct {
	healthy bool
	err     error
}

// probe wraps a CheckFunc with its timeout and published state. The fails
// counter is only touched by the supervisor; state is read by HTTP handlers.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	fails int
	state atomic.Pointer[probeState]
}

func newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	p := &probe{name: name, timeout: timeout, check: check}
	p.state.Store(&probeState{healthy: true})
	return p
}

// run executes the probe once and publishes the resulting state.
func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	if err != nil {
		p.fails++
	} else {
		p.fails = 0
	}
	p.state.Store(&probeState{healthy: p.fails < failAfter, err: err})
}

// Service runs registered probes and serves their combined status.
type Service struct {
	ready atomic.Bool

	// mu guards the probe slices and cancel; probes themselves publish
	// state through atomics and need no locking to read.
	mu        sync.Mutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New creates a Service. It starts not ready; call SetReady(true) once
// initialization has finished.
func New() *Service {
	return &Service{}
}

// AddLivenessCheck registers a probe for /livez. Liveness probes answer
// "is this process stuck" — goroutine leaks, runaway GC pauses.
func (s *Service) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liveness = append(s.liveness, newProbe(name, timeout, check))
}

// AddReadinessCheck registers a probe for /readyz. Readiness probes answer
// "can this process serve traffic" — database connectivity, dependent
// services.
func (s *Service) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readiness = append(s.readiness, newProbe(name, timeout, check))
}

// Start launches the supervisor goroutine. All probes run immediately and
// then once per interval until Stop is called or ctx is cancelled.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	probes := make([]*probe, 0, len(s.liveness)+len(s.readiness))
	probes = append(probes, s.liveness...)
	probes = append(probes, s.readiness...)
	s.mu.Unlock()

	go supervise(ctx, probes, interval)
}

// supervise drives all probes on a shared ticker. Probes within a tick run
// concurrently; a tick does not start before the previous one finished.
func supervise(ctx context.Context, probes []*probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runAll := func() {
		var wg sync.WaitGroup
		for _, p := range probes {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.run(ctx)
			}()
		}
		wg.Wait()
	}

	runAll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runAll()
		}
	}
}

// Stop cancels the supervisor. Safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SetReady flips the manual readiness gate. Set to false at the start of
// graceful shutdown so load balancers stop routing new requests here.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// IsReady reports whether the service is ready: the manual gate is open and
// every readiness probe is currently healthy.
func (s *Service) IsReady() bool {
	if !s.ready.Load() {
		return false
	}
	for _, p := range s.snapshot(&s.readiness) {
		if !p.state.Load().healthy {
			return false
		}
	}
	return true
}

func (s *Service) snapshot(probes *[]*probe) []*probe {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*probe, len(*probes))
	copy(out, *probes)
	return out
}

// statusBody is the JSON shape served by both endpoints.
type statusBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} while all liveness probes
// pass, 503 with per-probe failure messages otherwise.
func (s *Service) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, failures(s.snapshot(&s.liveness)))
}

// ReadyEndpoint serves /readyz. It reports unhealthy when the manual gate is
// closed, even if every readiness probe passes.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	fails := failures(s.snapshot(&s.readiness))
	if !s.ready.Load() {
		fails["_readiness"] = "service is not ready"
	}
	writeStatus(w, fails)
}

// failures collects the last error message of every unhealthy probe.
func failures(probes []*probe) map[string]string {
	out := make(map[string]string)
	for _, p := range probes {
		st := p.state.Load()
		if st.healthy {
			continue
		}
		if st.err != nil {
			out[p.name] = st.err.Error()
		} else {
			out[p.name] = "check is unhealthy"
		}
	}
	return out
}

func writeStatus(w http.ResponseWriter, fails map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	body := statusBody{Status: "ok"}
	code := http.StatusOK
	if len(fails) > 0 {
		body.Status = "unhealthy"
		body.Checks = fails
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
