package domain

type FilterKind string

const (
	FilterPeaking   FilterKind = "Peaking"
	FilterLowShelf  FilterKind = "Lowshelf"
	FilterHighShelf FilterKind = "Highshelf"
	FilterLowPass   FilterKind = "Lowpass"
	FilterHighPass  FilterKind = "Highpass"
)

// FilterSpec is one stage of a processing chain. Order within a ChainSpec is
// significant: stages are applied to the signal in list order.
type FilterSpec struct {
	Kind        FilterKind
	FrequencyHz float64
	GainDB      float64
	Q           float64
}

// ChainSpec is a full user-level processing specification: a preamp gain plus
// an ordered list of filters. Passed by value; never mutated after creation.
type ChainSpec struct {
	PreampDB float64
	Filters  []FilterSpec
}

// SampleRates the engine accepts, in Hz.
var SampleRates = []int{44100, 48000, 96000, 192000}

// BitDepths the engine accepts.
var BitDepths = []int{16, 24, 32}

func ValidSampleRate(rate int) bool {
	for _, r := range SampleRates {
		if r == rate {
			return true
		}
	}
	return false
}

func ValidBitDepth(bits int) bool {
	for _, b := range BitDepths {
		if b == bits {
			return true
		}
	}
	return false
}
