// Package engineconf maps user-level processing chains onto the engine's
// native YAML configuration document. Generation is pure: no I/O, no clock,
// same inputs always yield the same document.
package engineconf

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"dspbridge/internal/domain"
)

// DeviceTopology names the hardware endpoints the generated document binds.
type DeviceTopology struct {
	CaptureDevice  string
	PlaybackDevice string
	Channels       int
	ChunkSize      int
}

const (
	defaultChannels  = 2
	defaultChunkSize = 1024
)

// Document is one generated engine configuration. Documents are write-once:
// a changed chain produces a new document, the old one is superseded whole.
type Document struct {
	Devices  Devices           `yaml:"devices"`
	Filters  map[string]Filter `yaml:"filters,omitempty"`
	Pipeline []PipelineStep    `yaml:"pipeline,omitempty"`

	stages []string
}

type Devices struct {
	SampleRate int      `yaml:"samplerate"`
	ChunkSize  int      `yaml:"chunksize"`
	Capture    Endpoint `yaml:"capture"`
	Playback   Endpoint `yaml:"playback"`
}

type Endpoint struct {
	Type     string `yaml:"type"`
	Channels int    `yaml:"channels"`
	Device   string `yaml:"device,omitempty"`
	Format   string `yaml:"format"`
}

type Filter struct {
	Type       string         `yaml:"type"`
	Parameters map[string]any `yaml:"parameters"`
}

type PipelineStep struct {
	Type     string   `yaml:"type"`
	Channels []int    `yaml:"channels"`
	Names    []string `yaml:"names"`
}

// StageNames returns the generated filter stage names in application order,
// matching the single pipeline step's names list.
func (d *Document) StageNames() []string {
	return d.stages
}

// Encode renders the document as the engine's YAML format.
func (d *Document) Encode() ([]byte, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding engine config: %w", err)
	}
	return data, nil
}

// Generate builds an engine configuration for the given chain. The preamp
// becomes a Gain stage only when non-zero; each filter becomes one Biquad
// stage in input order; one pipeline step applies all stages to both channels
// in declaration order.
func Generate(chain domain.ChainSpec, sampleRate, bitDepth int, topology DeviceTopology) (*Document, error) {
	if sampleRate <= 0 {
		return nil, &GenerationError{Reason: fmt.Sprintf("sample rate must be positive, got %d", sampleRate)}
	}
	for i, f := range chain.Filters {
		if f.Q <= 0 {
			return nil, &GenerationError{Reason: fmt.Sprintf("filter %d (%s): Q must be positive, got %g", i, f.Kind, f.Q)}
		}
	}

	format, err := sampleFormat(bitDepth)
	if err != nil {
		return nil, err
	}

	channels := topology.Channels
	if channels <= 0 {
		channels = defaultChannels
	}
	chunkSize := topology.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	doc := &Document{
		Devices: Devices{
			SampleRate: sampleRate,
			ChunkSize:  chunkSize,
			Capture: Endpoint{
				Type:     "Alsa",
				Channels: channels,
				Device:   topology.CaptureDevice,
				Format:   format,
			},
			Playback: Endpoint{
				Type:     "Alsa",
				Channels: channels,
				Device:   topology.PlaybackDevice,
				Format:   format,
			},
		},
	}

	filters := make(map[string]Filter)
	var names []string

	if chain.PreampDB != 0 {
		filters["preamp"] = Filter{
			Type:       "Gain",
			Parameters: map[string]any{"gain": chain.PreampDB},
		}
		names = append(names, "preamp")
	}

	for i, f := range chain.Filters {
		name := fmt.Sprintf("eq_%d", i+1)
		filters[name] = Filter{
			Type:       "Biquad",
			Parameters: biquadParameters(f),
		}
		names = append(names, name)
	}

	if len(names) > 0 {
		doc.Filters = filters
		doc.Pipeline = []PipelineStep{{
			Type:     "Filter",
			Channels: channelList(channels),
			Names:    names,
		}}
	}
	doc.stages = names

	return doc, nil
}

// Bypass builds a pass-through document: no filter stages, 0 dB net gain.
func Bypass(sampleRate, bitDepth int, topology DeviceTopology) (*Document, error) {
	return Generate(domain.ChainSpec{}, sampleRate, bitDepth, topology)
}

func biquadParameters(f domain.FilterSpec) map[string]any {
	params := map[string]any{
		"type": string(f.Kind),
		"freq": f.FrequencyHz,
		"q":    f.Q,
	}
	// Pass filters have no gain parameter in the engine's schema.
	switch f.Kind {
	case domain.FilterLowPass, domain.FilterHighPass:
	default:
		params["gain"] = f.GainDB
	}
	return params
}

func sampleFormat(bitDepth int) (string, error) {
	switch bitDepth {
	case 16:
		return "S16LE", nil
	case 24:
		return "S24LE", nil
	case 32:
		return "S32LE", nil
	default:
		return "", &GenerationError{Reason: fmt.Sprintf("unsupported bit depth %d", bitDepth)}
	}
}

func channelList(n int) []int {
	chs := make([]int, n)
	for i := range chs {
		chs[i] = i
	}
	return chs
}
