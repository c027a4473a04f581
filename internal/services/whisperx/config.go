package whisperx

// Config captures runtime settings for WhisperX runs.
type Config struct {
	// Model is the WhisperX model name, e.g. "large-v3".
	Model string
	// CUDAEnabled enables GPU acceleration.
	CUDAEnabled bool
	// VADMethod is "silero" or "pyannote".
	VADMethod string
	// HFToken is the Hugging Face token pyannote needs.
	HFToken string
	// FFmpegBinary extracts the audio track before transcription.
	FFmpegBinary string
}

// WhisperX invocation constants.
const (
	DefaultModel      = "large-v3"
	CUDAIndexURL      = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL      = "https://pypi.org/simple"
	BatchSize         = "4"
	ChunkSize         = "15"
	VADOnset          = "0.08"
	VADOffset         = "0.07"
	BeamSize          = "5"
	SegmentResolution = "sentence"
	OutputFormat      = "json"
	CPUDevice         = "cpu"
	CUDADevice        = "cuda"
	CPUComputeType    = "float32"
	VADMethodPyannote = "pyannote"
	VADMethodSilero   = "silero"
)

// Command names for external tools.
const (
	UVXCommand    = "uvx"
	FFmpegCommand = "ffmpeg"
)

// File names inside a source directory.
const (
	AudioFile      = "audio.wav"
	TranscriptFile = "transcript.json"
)
