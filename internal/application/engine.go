package application

import "context"

// EngineTransport is the live control channel to the engine. The remote and
// local engine variants share this contract; only the wiring differs.
type EngineTransport interface {
	Connect(ctx context.Context) error
	Close() error
	Connected() bool
	ReconnectCount() int
	LastError() error

	EngineState(ctx context.Context) (string, error)
	CaptureRate(ctx context.Context) (int, error)
	PipelineLength(ctx context.Context) (int, error)
	Version(ctx context.Context) (string, error)
	SetConfig(ctx context.Context, configYAML string) error
	StopEngine(ctx context.Context) error
}

// ConfigSyncer is the durable out-of-band path for configuration documents.
type ConfigSyncer interface {
	Push(ctx context.Context, doc []byte) error
	Target() string
}
