// Package application owns the session lifecycle for one managed engine:
// user intent (should the engine be running, with which chain), the engine's
// last observed state, and the reconciliation between the two across an
// unreliable link.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dspbridge/internal/domain"
	"dspbridge/internal/engineconf"
)

// ErrBusy rejects a configuration change issued while a previous one is still
// pushing. There is no mid-flight cancellation; callers retry after the
// in-flight operation settles.
var ErrBusy = errors.New("configuration change already in progress")

// engineStateRunning is the engine's self-reported active processing state.
const engineStateRunning = "Running"

// intentState is what the user asked for. It survives reconnects and
// transport restarts; only explicit controller operations mutate it.
type intentState struct {
	shouldRun  bool
	bypass     bool
	sampleRate int
	bitDepth   int
	lastChain  domain.ChainSpec
	haveChain  bool
}

// observedState is what the engine last reported about itself. A failed poll
// never partially overwrites it.
type observedState struct {
	running        bool
	sampleRate     int
	pipelineLength int
}

// Controller is the public control surface for one managed engine. All
// operations are atomic from the caller's perspective; overlapping
// configuration pushes are rejected with ErrBusy.
type Controller struct {
	transport EngineTransport
	syncer    ConfigSyncer
	topology  engineconf.DeviceTopology
	logger    *slog.Logger

	mu        sync.Mutex
	intent    intentState
	observed  observedState
	busy      bool
	backend   string
	startedAt time.Time
	lastErr   string
	lastCheck time.Time
	devices   []domain.DeviceStatus
}

func NewController(
	transport EngineTransport,
	syncer ConfigSyncer,
	topology engineconf.DeviceTopology,
	devices []domain.DeviceStatus,
	logger *slog.Logger,
) *Controller {
	return &Controller{
		transport: transport,
		syncer:    syncer,
		topology:  topology,
		devices:   devices,
		backend:   "camilladsp",
		logger:    logger,
	}
}

// Start applies a processing chain and marks the session as should-be-running.
// The durable push always precedes the live push, so an engine restarting
// mid-change comes back holding the new configuration. A live-push failure
// after a successful durable push is logged, not surfaced.
func (c *Controller) Start(ctx context.Context, chain domain.ChainSpec, sampleRate, bitDepth int) error {
	return c.apply(ctx, chain, sampleRate, bitDepth, false)
}

// StartBypass applies a pass-through configuration: no filters, 0 dB net gain.
func (c *Controller) StartBypass(ctx context.Context, sampleRate int) error {
	c.mu.Lock()
	bitDepth := c.intent.bitDepth
	c.mu.Unlock()
	if bitDepth == 0 {
		bitDepth = 24
	}
	return c.apply(ctx, domain.ChainSpec{}, sampleRate, bitDepth, true)
}

// RestartWithSampleRate regenerates the last applied chain (or bypass config)
// at the new rate and re-runs the push path. A no-op success when nothing was
// ever started.
func (c *Controller) RestartWithSampleRate(ctx context.Context, sampleRate int) error {
	c.mu.Lock()
	if !c.intent.haveChain {
		c.mu.Unlock()
		return nil
	}
	chain := c.intent.lastChain
	bitDepth := c.intent.bitDepth
	bypass := c.intent.bypass
	c.mu.Unlock()

	return c.apply(ctx, chain, sampleRate, bitDepth, bypass)
}

func (c *Controller) apply(ctx context.Context, chain domain.ChainSpec, sampleRate, bitDepth int, bypass bool) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.mu.Unlock()
	}()

	doc, err := engineconf.Generate(chain, sampleRate, bitDepth, c.topology)
	if err != nil {
		return err
	}
	data, err := doc.Encode()
	if err != nil {
		return err
	}

	durableErr := c.syncer.Push(ctx, data)
	if durableErr != nil {
		c.logger.Warn("durable config push failed", "target", c.syncer.Target(), "error", durableErr)
	}

	liveErr := c.pushLive(ctx, string(data))

	if durableErr != nil && liveErr != nil {
		c.recordError(durableErr)
		return fmt.Errorf("starting session: %w", durableErr)
	}
	if liveErr != nil {
		// Durable copy landed; the engine adopts it on its own restart.
		c.logger.Warn("live config push failed, engine will pick up config on restart", "error", liveErr)
	}
	if durableErr != nil {
		c.logger.Warn("config applied live only, durable copy is stale", "target", c.syncer.Target())
	}

	if liveErr == nil {
		if v, err := c.transport.Version(ctx); err == nil {
			c.mu.Lock()
			c.backend = v
			c.mu.Unlock()
		}
	}

	c.mu.Lock()
	wasRunning := c.intent.shouldRun
	c.intent = intentState{
		shouldRun:  true,
		bypass:     bypass,
		sampleRate: sampleRate,
		bitDepth:   bitDepth,
		lastChain:  chain,
		haveChain:  true,
	}
	// Optimistic view; the reconciler corrects it on its next pass.
	c.observed = observedState{
		running:        true,
		sampleRate:     sampleRate,
		pipelineLength: len(doc.Pipeline),
	}
	if !wasRunning {
		c.startedAt = time.Now()
	}
	c.mu.Unlock()

	c.logger.Info("session started",
		"sample_rate", sampleRate,
		"bit_depth", bitDepth,
		"bypass", bypass,
		"stages", len(doc.StageNames()),
	)
	return nil
}

func (c *Controller) pushLive(ctx context.Context, configYAML string) error {
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}
	return c.transport.SetConfig(ctx, configYAML)
}

// Stop clears the should-be-running intent and sends a best-effort stop
// command. It always succeeds from the caller's point of view; transport
// failures are logged internally only.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.intent.shouldRun = false
	c.intent.bypass = false
	c.observed.running = false
	c.startedAt = time.Time{}
	c.mu.Unlock()

	if err := c.transport.StopEngine(ctx); err != nil {
		c.logger.Warn("stop command failed", "error", err)
		c.recordError(err)
	}

	c.logger.Info("session stopped")
	return nil
}

// IsRunning reports true while the transport is connected or the session is
// intended to run. This over-reports briefly during a real engine failure but
// never flickers during a transient reconnect; callers needing ground truth
// inspect the transport state via HealthReport.
func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	shouldRun := c.intent.shouldRun
	c.mu.Unlock()
	return c.transport.Connected() || shouldRun
}

// Status is a pure read of held state.
func (c *Controller) Status() domain.Status {
	running := c.IsRunning()

	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.Status{
		Running:    running,
		SampleRate: c.intent.sampleRate,
		BitDepth:   c.intent.bitDepth,
		Bypass:     c.intent.bypass,
		Backend:    c.backend,
	}
}

// HealthReport assembles a diagnostics snapshot from already-held state.
// It never performs I/O.
func (c *Controller) HealthReport() domain.HealthReport {
	running := c.IsRunning()
	reconnects := c.transport.ReconnectCount()
	transportErr := c.transport.LastError()

	c.mu.Lock()
	defer c.mu.Unlock()

	var uptime float64
	if c.intent.shouldRun && !c.startedAt.IsZero() {
		uptime = time.Since(c.startedAt).Seconds()
	}

	lastErr := c.lastErr
	if lastErr == "" && transportErr != nil {
		lastErr = transportErr.Error()
	}

	devices := make([]domain.DeviceStatus, len(c.devices))
	copy(devices, c.devices)

	return domain.HealthReport{
		Running:        running,
		UptimeSeconds:  uptime,
		ReconnectCount: reconnects,
		Bypass:         c.intent.bypass,
		DeviceStatuses: devices,
		LastError:      lastErr,
		LastCheck:      c.lastCheck,
	}
}

// applyObservation commits a complete successful poll result.
func (c *Controller) applyObservation(obs observedState, detailsValid bool, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if detailsValid {
		c.observed = obs
	} else {
		c.observed.running = obs.running
	}
	c.lastCheck = at
	c.lastErr = ""
}

func (c *Controller) recordError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err.Error()
}

// Observed returns the engine's last self-reported running state and details.
func (c *Controller) Observed() (running bool, sampleRate, pipelineLength int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observed.running, c.observed.sampleRate, c.observed.pipelineLength
}
