package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dspbridge/internal/engineconf"
)

type stubTransport struct {
	connected  bool
	connectErr error
	state      string
	stateErr   error
	rate       int
	rateErr    error
	plen       int
	plenErr    error
}

func (s *stubTransport) Connect(_ context.Context) error {
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}
func (s *stubTransport) Close() error                    { s.connected = false; return nil }
func (s *stubTransport) Connected() bool                 { return s.connected }
func (s *stubTransport) ReconnectCount() int             { return 0 }
func (s *stubTransport) LastError() error                { return nil }

func (s *stubTransport) EngineState(_ context.Context) (string, error) { return s.state, s.stateErr }
func (s *stubTransport) CaptureRate(_ context.Context) (int, error)    { return s.rate, s.rateErr }
func (s *stubTransport) PipelineLength(_ context.Context) (int, error) { return s.plen, s.plenErr }
func (s *stubTransport) Version(_ context.Context) (string, error)     { return "test", nil }
func (s *stubTransport) SetConfig(_ context.Context, _ string) error   { return nil }
func (s *stubTransport) StopEngine(_ context.Context) error            { return nil }

type nopSyncer struct{}

func (nopSyncer) Push(_ context.Context, _ []byte) error { return nil }
func (nopSyncer) Target() string                         { return "nop" }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestReconciler(tr EngineTransport) (*Reconciler, *Controller) {
	ctrl := NewController(tr, nopSyncer{}, engineconf.DeviceTopology{}, nil, discardLogger())
	return NewReconciler(tr, ctrl, time.Second, discardLogger()), ctrl
}

func TestPollCommitsFullObservation(t *testing.T) {
	tr := &stubTransport{state: engineStateRunning, rate: 96000, plen: 3}
	r, ctrl := newTestReconciler(tr)

	r.poll(context.Background())

	running, rate, plen := ctrl.Observed()
	assert.True(t, running)
	assert.Equal(t, 96000, rate)
	assert.Equal(t, 3, plen)
	assert.False(t, ctrl.HealthReport().LastCheck.IsZero())
}

func TestPollDialsDisconnectedTransport(t *testing.T) {
	// No Start() has run, so nothing has dialed yet. The poll loop must
	// establish the connection itself and observe the already-running engine.
	tr := &stubTransport{state: engineStateRunning, rate: 48000, plen: 2}
	r, ctrl := newTestReconciler(tr)

	require.False(t, tr.Connected())
	r.poll(context.Background())

	assert.True(t, tr.Connected())
	running, rate, plen := ctrl.Observed()
	assert.True(t, running)
	assert.Equal(t, 48000, rate)
	assert.Equal(t, 2, plen)
}

func TestPollRecordsConnectFailure(t *testing.T) {
	tr := &stubTransport{state: engineStateRunning, connectErr: errors.New("engine unreachable")}
	r, ctrl := newTestReconciler(tr)

	r.poll(context.Background())

	running, _, _ := ctrl.Observed()
	assert.False(t, running)
	assert.Contains(t, ctrl.HealthReport().LastError, "engine unreachable")
}

func TestFailedPollLeavesObservationUntouched(t *testing.T) {
	tr := &stubTransport{state: engineStateRunning, rate: 96000, plen: 3}
	r, ctrl := newTestReconciler(tr)

	r.poll(context.Background())

	tr.stateErr = errors.New("socket closed")
	tr.rate = 0
	r.poll(context.Background())

	running, rate, plen := ctrl.Observed()
	assert.True(t, running, "failed poll must not clear the last good observation")
	assert.Equal(t, 96000, rate)
	assert.Equal(t, 3, plen)
	assert.Contains(t, ctrl.HealthReport().LastError, "socket closed")
}

func TestDetailFailureAbandonsWholePoll(t *testing.T) {
	tr := &stubTransport{state: engineStateRunning, rate: 96000, plen: 3}
	r, ctrl := newTestReconciler(tr)

	r.poll(context.Background())

	// Run-state succeeds but details fail: no partial overwrite allowed.
	tr.rate = 48000
	tr.plenErr = errors.New("request timeout")
	r.poll(context.Background())

	_, rate, plen := ctrl.Observed()
	assert.Equal(t, 96000, rate)
	assert.Equal(t, 3, plen)
}

func TestStoppedEngineKeepsLastDetails(t *testing.T) {
	tr := &stubTransport{state: engineStateRunning, rate: 96000, plen: 3}
	r, ctrl := newTestReconciler(tr)

	r.poll(context.Background())

	tr.state = "Paused"
	r.poll(context.Background())

	running, rate, plen := ctrl.Observed()
	assert.False(t, running)
	assert.Equal(t, 96000, rate)
	assert.Equal(t, 3, plen)
}

func TestPollLoopStopsOnContextCancel(t *testing.T) {
	tr := &stubTransport{state: engineStateRunning, rate: 48000, plen: 1}
	ctrl := NewController(tr, nopSyncer{}, engineconf.DeviceTopology{}, nil, discardLogger())
	r := NewReconciler(tr, ctrl, 10*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	require.Eventually(t, func() bool {
		running, _, _ := ctrl.Observed()
		return running
	}, time.Second, 5*time.Millisecond)

	cancel()
}
