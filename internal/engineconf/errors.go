package engineconf

import "fmt"

// GenerationError reports a chain specification the engine could never run.
type GenerationError struct {
	Reason string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("config generation: %s", e.Reason)
}
