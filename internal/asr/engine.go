package asr

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"whisperd/internal/caption"
)

// chunkSeconds is the decode window. Whisper models handle up to 30 seconds
// of audio natively.
const chunkSeconds = 30

// segmentGap is the pause between tokens, in seconds, that starts a new
// segment within one decode window.
const segmentGap = 0.8

// Engine transcribes a canonical 16kHz mono waveform into ordered segments.
// The language hint is advisory; the sherpa whisper models auto-detect the
// spoken language when left unforced.
type Engine interface {
	Transcribe(wavPath, language string) ([]caption.Segment, error)
}

// Loader constructs an engine instance for a resource configuration.
// Construction is expensive (model load), so callers go through Cache.
type Loader interface {
	Load(cfg ResourceConfig) (Engine, error)
}

// WhisperLoader loads sherpa-onnx whisper models from a models directory.
// Each model variant lives under sherpa-onnx-whisper-<variant>; precision
// selects between the int8-quantized and full-width onnx files.
type WhisperLoader struct {
	ModelsDir  string
	NumThreads int
	SampleRate int
}

// NewWhisperLoader creates a loader rooted at modelsDir.
func NewWhisperLoader(modelsDir string, numThreads int) *WhisperLoader {
	if numThreads <= 0 {
		numThreads = 4
	}
	return &WhisperLoader{
		ModelsDir:  modelsDir,
		NumThreads: numThreads,
		SampleRate: 16000,
	}
}

// Load resolves the model files for cfg and constructs a recognizer.
// A missing model directory or file set is fatal (ErrBadModel): no other
// ladder step can fix a model that is not installed. A recognizer that
// fails to initialize over existing files is classified as a resource
// failure (device unavailable, insufficient memory) and advances the ladder.
func (l *WhisperLoader) Load(cfg ResourceConfig) (Engine, error) {
	modelDir := filepath.Join(l.ModelsDir, "sherpa-onnx-whisper-"+cfg.Model)
	if _, err := os.Stat(modelDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrBadModel, modelDir)
	}

	encoderPath := findModelFile(modelDir, modelCandidates("encoder", cfg.Precision))
	decoderPath := findModelFile(modelDir, modelCandidates("decoder", cfg.Precision))
	tokensPath := findModelFile(modelDir, []string{"tokens.txt"})

	if encoderPath == "" {
		return nil, fmt.Errorf("%w: encoder not found in %s", ErrBadModel, modelDir)
	}
	if decoderPath == "" {
		return nil, fmt.Errorf("%w: decoder not found in %s", ErrBadModel, modelDir)
	}
	if tokensPath == "" {
		return nil, fmt.Errorf("%w: tokens.txt not found in %s", ErrBadModel, modelDir)
	}

	sherpaConfig := sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{
			SampleRate: l.SampleRate,
			FeatureDim: 80,
		},
		ModelConfig: sherpa.OfflineModelConfig{
			Whisper: sherpa.OfflineWhisperModelConfig{
				Encoder: encoderPath,
				Decoder: decoderPath,
				Task:    "transcribe",
			},
			Tokens:     tokensPath,
			NumThreads: l.NumThreads,
			Provider:   cfg.Device,
			Debug:      0,
		},
	}

	recognizer := sherpa.NewOfflineRecognizer(&sherpaConfig)
	if recognizer == nil {
		return nil, &ResourceError{
			Config: cfg,
			Err:    fmt.Errorf("failed to initialize recognizer on %s", cfg.Device),
		}
	}

	return &whisperEngine{
		recognizer: recognizer,
		sampleRate: l.SampleRate,
	}, nil
}

// modelCandidates orders onnx file names by preference for a precision.
// Quantized files are lighter; full-width files are the float16 default.
func modelCandidates(base, precision string) []string {
	quantized := []string{base + ".int8.onnx"}
	full := []string{base + ".onnx"}
	if precision == PrecisionFloat16 {
		return append(full, quantized...)
	}
	return append(quantized, full...)
}

// findModelFile returns the first existing candidate in dir, or "".
func findModelFile(dir string, candidates []string) string {
	for _, candidate := range candidates {
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

type whisperEngine struct {
	recognizer *sherpa.OfflineRecognizer
	sampleRate int
}

// Transcribe decodes the waveform in 30-second windows and assembles
// segments from token timestamps, splitting on pauses. Segments come out
// ordered by start time because windows are processed front to back.
func (e *whisperEngine) Transcribe(wavPath, language string) ([]caption.Segment, error) {
	wave := sherpa.ReadWave(wavPath)
	if wave == nil || len(wave.Samples) == 0 {
		return nil, fmt.Errorf("failed to read WAV file: %s", wavPath)
	}
	_ = language // auto-detected by the multilingual models

	chunkSamples := e.sampleRate * chunkSeconds
	var segments []caption.Segment

	for offset := 0; offset < len(wave.Samples); offset += chunkSamples {
		end := offset + chunkSamples
		if end > len(wave.Samples) {
			end = len(wave.Samples)
		}

		chunkStart := float64(offset) / float64(e.sampleRate)
		chunkEnd := float64(end) / float64(e.sampleRate)

		segs := e.decodeChunk(wave.Samples[offset:end], chunkStart, chunkEnd)
		segments = append(segments, segs...)
	}

	return segments, nil
}

// decodeChunk runs one window through the recognizer.
func (e *whisperEngine) decodeChunk(samples []float32, chunkStart, chunkEnd float64) []caption.Segment {
	stream := sherpa.NewOfflineStream(e.recognizer)
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(e.sampleRate, samples)
	e.recognizer.Decode(stream)

	result := stream.GetResult()
	if result == nil || strings.TrimSpace(result.Text) == "" {
		return nil
	}

	// Without token timestamps the whole window becomes one segment.
	if len(result.Timestamps) == 0 || len(result.Tokens) != len(result.Timestamps) {
		return []caption.Segment{{
			Start: chunkStart,
			End:   chunkEnd,
			Text:  strings.TrimSpace(result.Text),
		}}
	}

	var segments []caption.Segment
	var text strings.Builder
	segStart := chunkStart + float64(result.Timestamps[0])
	lastTime := segStart

	flush := func(endTime float64) {
		t := strings.TrimSpace(text.String())
		if t != "" {
			segments = append(segments, caption.Segment{Start: segStart, End: endTime, Text: t})
		}
		text.Reset()
	}

	for i, token := range result.Tokens {
		tokenTime := chunkStart + float64(result.Timestamps[i])
		if tokenTime-lastTime >= segmentGap && text.Len() > 0 {
			flush(lastTime)
			segStart = tokenTime
		}
		text.WriteString(token)
		lastTime = tokenTime
	}
	flush(chunkEnd)

	return segments
}
