package camilla

import (
	"context"
	"encoding/json"
	"fmt"
)

// EngineState returns the engine's self-reported processing state, e.g.
// "Running", "Paused" or "Inactive".
func (c *Client) EngineState(ctx context.Context) (string, error) {
	return c.stringCommand(ctx, cmdGetState)
}

// Version returns the engine's version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	return c.stringCommand(ctx, cmdGetVersion)
}

// CaptureRate returns the sample rate the engine is currently capturing at.
func (c *Client) CaptureRate(ctx context.Context) (int, error) {
	v, err := c.SendCommand(ctx, cmdGetCaptureRate, nil)
	if err != nil {
		return 0, err
	}
	var rate int
	if err := json.Unmarshal(v, &rate); err != nil {
		return 0, fmt.Errorf("parsing %s value: %w", cmdGetCaptureRate, err)
	}
	return rate, nil
}

// PipelineLength returns the number of steps in the engine's active pipeline.
// The engine reports its config as a JSON string, so the value decodes twice.
func (c *Client) PipelineLength(ctx context.Context) (int, error) {
	v, err := c.SendCommand(ctx, cmdGetConfigJSON, nil)
	if err != nil {
		return 0, err
	}
	var text string
	if err := json.Unmarshal(v, &text); err != nil {
		return 0, fmt.Errorf("parsing %s value: %w", cmdGetConfigJSON, err)
	}
	var cfg struct {
		Pipeline []json.RawMessage `json:"pipeline"`
	}
	if err := json.Unmarshal([]byte(text), &cfg); err != nil {
		return 0, fmt.Errorf("parsing engine config json: %w", err)
	}
	return len(cfg.Pipeline), nil
}

// SetConfig pushes a full YAML configuration to the running engine.
func (c *Client) SetConfig(ctx context.Context, configYAML string) error {
	_, err := c.SendCommand(ctx, cmdSetConfig, configYAML)
	return err
}

// Reload asks the engine to re-read its configuration file from disk.
func (c *Client) Reload(ctx context.Context) error {
	_, err := c.SendCommand(ctx, cmdReload, nil)
	return err
}

// StopEngine asks the engine to stop processing.
func (c *Client) StopEngine(ctx context.Context) error {
	_, err := c.SendCommand(ctx, cmdStop, nil)
	return err
}

func (c *Client) stringCommand(ctx context.Context, name string) (string, error) {
	v, err := c.SendCommand(ctx, name, nil)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("parsing %s value: %w", name, err)
	}
	return s, nil
}
