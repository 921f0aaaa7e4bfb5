//go:build portaudio
// +build portaudio

// Package devices discovers the capture and playback endpoints available on
// this host. The scan feeds device statuses into health reports; configured
// endpoint names always win over discovered ones.
package devices

import (
	"fmt"

	"github.com/gordonklaus/portaudio"

	"dspbridge/internal/domain"
)

// Scan enumerates audio endpoints via portaudio.
func Scan() ([]domain.DeviceStatus, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}

	statuses := make([]domain.DeviceStatus, 0, len(infos))
	for _, info := range infos {
		statuses = append(statuses, domain.DeviceStatus{
			Name: info.Name,
			Detail: fmt.Sprintf("in=%d out=%d default_rate=%.0f",
				info.MaxInputChannels,
				info.MaxOutputChannels,
				info.DefaultSampleRate,
			),
		})
	}
	return statuses, nil
}
