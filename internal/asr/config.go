package asr

import "fmt"

// Execution targets. CUDA loads fail with a resource error when the device
// is unavailable or out of memory; CPU is the universal fallback.
const (
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

// Numeric precision modes, heaviest to lightest.
const (
	PrecisionFloat16     = "float16"
	PrecisionInt8Float16 = "int8_float16"
	PrecisionInt8        = "int8"
)

// ResourceConfig identifies one way of loading the transcription engine:
// a model variant, an execution target, and a numeric precision. It is
// immutable and used as the engine cache key.
type ResourceConfig struct {
	Model     string
	Device    string
	Precision string
}

// String renders the config the way status messages display it.
func (c ResourceConfig) String() string {
	return fmt.Sprintf("%s [%s/%s]", c.Model, c.Device, c.Precision)
}

// Ladder returns the ordered sequence of configurations to attempt for a
// job, starting from the requested one and degrading toward lighter models,
// lighter precision, and finally CPU. The policy is fixed: each step trades
// accuracy for a smaller memory footprint, so a load that fails with a
// resource error has a strictly safer next candidate. Steps are not
// deduplicated; a request that already matches a fallback simply retries it.
func Ladder(req ResourceConfig, language string) []ResourceConfig {
	medium := "medium"
	if language == "en" {
		medium = "medium.en"
	}

	return []ResourceConfig{
		req,
		{Model: req.Model, Device: req.Device, Precision: PrecisionInt8Float16},
		{Model: "large-v2", Device: req.Device, Precision: PrecisionInt8Float16},
		{Model: medium, Device: req.Device, Precision: PrecisionInt8Float16},
		{Model: req.Model, Device: DeviceCPU, Precision: PrecisionInt8},
	}
}
