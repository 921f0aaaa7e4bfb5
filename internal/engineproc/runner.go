// Package engineproc spawns and supervises a locally-run engine process. Used
// by the local-engine variant only; the control protocol itself is identical
// to the remote case, spoken over the engine's localhost control port.
package engineproc

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const stopGracePeriod = 5 * time.Second

type Runner struct {
	binary     string
	configPath string
	port       int
	logger     *slog.Logger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

func NewRunner(binary, configPath string, port int, logger *slog.Logger) *Runner {
	return &Runner{
		binary:     binary,
		configPath: configPath,
		port:       port,
		logger:     logger,
	}
}

// Start launches the engine with its control port enabled. No-op when the
// process is already running.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil {
		return nil
	}

	cmd := exec.CommandContext(ctx, r.binary, "-p", fmt.Sprintf("%d", r.port), "-w", r.configPath)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting engine process: %w", err)
	}

	r.cmd = cmd
	r.done = make(chan struct{})
	done := r.done

	go func() {
		err := cmd.Wait()
		r.mu.Lock()
		if r.cmd == cmd {
			r.cmd = nil
		}
		r.mu.Unlock()
		close(done)
		if err != nil {
			r.logger.Warn("engine process exited", "error", err)
		} else {
			r.logger.Info("engine process exited")
		}
	}()

	r.logger.Info("engine process started", "binary", r.binary, "pid", cmd.Process.Pid, "port", r.port)
	return nil
}

// Stop terminates the engine process, escalating from SIGTERM to SIGKILL
// after a grace period.
func (r *Runner) Stop() error {
	r.mu.Lock()
	cmd := r.cmd
	done := r.done
	r.mu.Unlock()

	if cmd == nil {
		return nil
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signalling engine process: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(stopGracePeriod):
		r.logger.Warn("engine process ignored SIGTERM, killing")
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("killing engine process: %w", err)
		}
		<-done
		return nil
	}
}

func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmd != nil
}
