package application

import (
	"context"
	"log/slog"
	"time"

	"dspbridge/internal/domain"
)

const defaultPollInterval = 2 * time.Second

// Reconciler polls the engine for authoritative run-state on a fixed interval
// and merges the result into the controller's observed state. Polls run
// sequentially; a slow poll drops ticks instead of piling up.
type Reconciler struct {
	transport  EngineTransport
	controller *Controller
	interval   time.Duration
	logger     *slog.Logger
}

func NewReconciler(transport EngineTransport, controller *Controller, interval time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Reconciler{
		transport:  transport,
		controller: controller,
		interval:   interval,
		logger:     logger,
	}
}

// Start launches the poll loop. It returns immediately; the loop stops when
// ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.poll(ctx)
			}
		}
	}()
}

// poll queries run-state, and only while the engine reports itself running,
// the pipeline and capture-rate details. Any failure abandons the whole poll
// so the last good observation is never partially overwritten.
func (r *Reconciler) poll(ctx context.Context) {
	// The transport only re-dials connections it once had. Dialing here covers
	// boot and a start whose live push failed, so a reachable engine never
	// stays invisible to the poll loop.
	if !r.transport.Connected() {
		if err := r.transport.Connect(ctx); err != nil {
			r.controller.recordError(err)
			r.logger.Debug("engine connect failed", "error", err)
			return
		}
	}

	state, err := r.transport.EngineState(ctx)
	if err != nil {
		r.controller.recordError(err)
		r.logger.Debug("state poll failed", "error", err)
		return
	}

	running := state == engineStateRunning
	if !running {
		r.controller.applyObservation(observedState{running: false}, false, time.Now())
		return
	}

	rate, err := r.transport.CaptureRate(ctx)
	if err != nil {
		r.controller.recordError(err)
		r.logger.Debug("capture rate poll failed", "error", err)
		return
	}
	pipelineLen, err := r.transport.PipelineLength(ctx)
	if err != nil {
		r.controller.recordError(err)
		r.logger.Debug("pipeline poll failed", "error", err)
		return
	}

	obs := observedState{
		running:        true,
		sampleRate:     rate,
		pipelineLength: pipelineLen,
	}
	r.controller.applyObservation(obs, true, time.Now())

	if !domain.ValidSampleRate(rate) {
		r.logger.Warn("engine reports unexpected sample rate", "sample_rate", rate)
	}
}
