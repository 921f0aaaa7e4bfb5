//go:build !portaudio
// +build !portaudio

// Package devices discovers the capture and playback endpoints available on
// this host. Stub when portaudio is not available.
package devices

import (
	"fmt"

	"dspbridge/internal/domain"
)

func Scan() ([]domain.DeviceStatus, error) {
	return nil, fmt.Errorf("device scan not available: rebuild with -tags portaudio")
}
