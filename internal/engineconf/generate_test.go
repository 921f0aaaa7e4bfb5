package engineconf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"dspbridge/internal/domain"
	"dspbridge/internal/engineconf"
)

var testTopology = engineconf.DeviceTopology{
	CaptureDevice:  "hw:Loopback,0",
	PlaybackDevice: "hw:DAC",
}

func TestGenerateStageCountAndOrder(t *testing.T) {
	tests := []struct {
		name     string
		preampDB float64
		filters  []domain.FilterSpec
		want     []string
	}{
		{
			name:     "preamp and two filters",
			preampDB: -2,
			filters: []domain.FilterSpec{
				{Kind: domain.FilterPeaking, FrequencyHz: 1000, GainDB: -3, Q: 1.0},
				{Kind: domain.FilterLowShelf, FrequencyHz: 80, GainDB: 4, Q: 0.7},
			},
			want: []string{"preamp", "eq_1", "eq_2"},
		},
		{
			name:     "zero preamp omitted",
			preampDB: 0,
			filters: []domain.FilterSpec{
				{Kind: domain.FilterHighShelf, FrequencyHz: 8000, GainDB: 2, Q: 0.7},
			},
			want: []string{"eq_1"},
		},
		{
			name:     "preamp only",
			preampDB: -6,
			want:     []string{"preamp"},
		},
		{
			name: "empty chain",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := domain.ChainSpec{PreampDB: tt.preampDB, Filters: tt.filters}
			doc, err := engineconf.Generate(chain, 48000, 24, testTopology)
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc.StageNames())

			if len(tt.want) > 0 {
				require.Len(t, doc.Pipeline, 1)
				assert.Equal(t, tt.want, doc.Pipeline[0].Names)
				assert.Equal(t, []int{0, 1}, doc.Pipeline[0].Channels)
			} else {
				assert.Empty(t, doc.Pipeline)
			}
		})
	}
}

func TestGenerateRejectsInvalidInput(t *testing.T) {
	chain := domain.ChainSpec{
		Filters: []domain.FilterSpec{{Kind: domain.FilterPeaking, FrequencyHz: 1000, GainDB: 1, Q: 1}},
	}

	_, err := engineconf.Generate(chain, 0, 24, testTopology)
	var genErr *engineconf.GenerationError
	require.ErrorAs(t, err, &genErr)

	_, err = engineconf.Generate(chain, -44100, 24, testTopology)
	require.ErrorAs(t, err, &genErr)

	badQ := domain.ChainSpec{
		Filters: []domain.FilterSpec{{Kind: domain.FilterPeaking, FrequencyHz: 1000, GainDB: 1, Q: 0}},
	}
	_, err = engineconf.Generate(badQ, 48000, 24, testTopology)
	require.ErrorAs(t, err, &genErr)

	_, err = engineconf.Generate(chain, 48000, 20, testTopology)
	require.ErrorAs(t, err, &genErr)
}

func TestGenerateFilterParameters(t *testing.T) {
	chain := domain.ChainSpec{
		Filters: []domain.FilterSpec{
			{Kind: domain.FilterPeaking, FrequencyHz: 1000, GainDB: -3, Q: 1.0},
			{Kind: domain.FilterLowPass, FrequencyHz: 18000, Q: 0.7},
		},
	}
	doc, err := engineconf.Generate(chain, 96000, 24, testTopology)
	require.NoError(t, err)

	peaking := doc.Filters["eq_1"]
	assert.Equal(t, "Biquad", peaking.Type)
	assert.Equal(t, "Peaking", peaking.Parameters["type"])
	assert.Equal(t, -3.0, peaking.Parameters["gain"])

	// Pass filters carry no gain parameter.
	lowpass := doc.Filters["eq_2"]
	assert.Equal(t, "Lowpass", lowpass.Parameters["type"])
	assert.NotContains(t, lowpass.Parameters, "gain")
}

func TestGenerateDeviceBlock(t *testing.T) {
	doc, err := engineconf.Generate(domain.ChainSpec{}, 96000, 32, testTopology)
	require.NoError(t, err)

	assert.Equal(t, 96000, doc.Devices.SampleRate)
	assert.Equal(t, 1024, doc.Devices.ChunkSize)
	assert.Equal(t, "hw:Loopback,0", doc.Devices.Capture.Device)
	assert.Equal(t, "hw:DAC", doc.Devices.Playback.Device)
	assert.Equal(t, "S32LE", doc.Devices.Capture.Format)
	assert.Equal(t, 2, doc.Devices.Capture.Channels)
}

func TestBypassHasNoStagesAndZeroGain(t *testing.T) {
	doc, err := engineconf.Bypass(48000, 24, testTopology)
	require.NoError(t, err)

	assert.Empty(t, doc.StageNames())
	assert.Empty(t, doc.Filters)
	assert.Empty(t, doc.Pipeline)
	assert.Equal(t, 48000, doc.Devices.SampleRate)
}

func TestEncodeIsValidEngineYAML(t *testing.T) {
	chain := domain.ChainSpec{
		PreampDB: -2,
		Filters:  []domain.FilterSpec{{Kind: domain.FilterPeaking, FrequencyHz: 1000, GainDB: -3, Q: 1.0}},
	}
	doc, err := engineconf.Generate(chain, 96000, 24, testTopology)
	require.NoError(t, err)

	data, err := doc.Encode()
	require.NoError(t, err)

	var decoded struct {
		Devices struct {
			SampleRate int `yaml:"samplerate"`
		} `yaml:"devices"`
		Pipeline []struct {
			Names []string `yaml:"names"`
		} `yaml:"pipeline"`
	}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, 96000, decoded.Devices.SampleRate)
	require.Len(t, decoded.Pipeline, 1)
	assert.Equal(t, []string{"preamp", "eq_1"}, decoded.Pipeline[0].Names)
}
