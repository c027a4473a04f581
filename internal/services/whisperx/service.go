package whisperx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
)

// Runner executes an external command.
type Runner func(ctx context.Context, name string, args ...string) error

// Service runs WhisperX transcription.
type Service struct {
	cfg    Config
	runner Runner
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config) *Service {
	if cfg.FFmpegBinary == "" {
		cfg.FFmpegBinary = FFmpegCommand
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.VADMethod == "" {
		cfg.VADMethod = VADMethodSilero
	}
	return &Service{cfg: cfg, runner: execRunner}
}

// WithCommandRunner replaces process execution, for tests.
func (s *Service) WithCommandRunner(runner Runner) *Service {
	if runner != nil {
		s.runner = runner
	}
	return s
}

// Model returns the configured model name.
func (s *Service) Model() string {
	return s.cfg.Model
}

// Transcribe extracts the audio of video into dir and transcribes it,
// returning the path of dir/transcript.json.
func (s *Service) Transcribe(ctx context.Context, video, dir, lang string) (string, error) {
	if video == "" {
		return "", fmt.Errorf("transcribe: video path required")
	}
	if dir == "" {
		dir = filepath.Dir(video)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	audio := filepath.Join(dir, AudioFile)
	if err := s.runner(ctx, s.cfg.FFmpegBinary, extractArgs(video, audio)...); err != nil {
		return "", fmt.Errorf("ffmpeg extract: %w", err)
	}
	defer os.Remove(audio)

	if err := s.runner(ctx, UVXCommand, s.buildArgs(audio, dir, lang)...); err != nil {
		return "", fmt.Errorf("whisperx: %w", err)
	}

	produced := filepath.Join(dir, strings.TrimSuffix(AudioFile, filepath.Ext(AudioFile))+".json")
	target := filepath.Join(dir, TranscriptFile)
	if err := os.Rename(produced, target); err != nil {
		return "", fmt.Errorf("whisperx output: %w", err)
	}
	return target, nil
}

func extractArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", "0:a:0",
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
}

// buildArgs constructs the uvx arguments for WhisperX.
func (s *Service) buildArgs(source, outputDir, lang string) []string {
	args := make([]string, 0, 32)
	if s.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	args = append(args,
		"whisperx",
		source,
		"--model", s.cfg.Model,
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--chunk_size", ChunkSize,
		"--vad_onset", VADOnset,
		"--vad_offset", VADOffset,
		"--beam_size", BeamSize,
		"--vad_method", s.cfg.VADMethod,
	)
	if s.cfg.VADMethod == VADMethodPyannote && s.cfg.HFToken != "" {
		args = append(args, "--hf_token", s.cfg.HFToken)
	}
	if code := isoCode(lang); code != "" {
		args = append(args, "--language", code)
	}
	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}
	return args
}

// isoCode reduces a language tag such as "en-US" or "eng" to its two letter
// base, or "" when unknown.
func isoCode(lang string) string {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return ""
	}
	return base.String()
}

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec

	// Torch 2.6 changed torch.load to weights_only by default, which breaks
	// the pyannote checkpoints WhisperX loads.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Word is a single word with timing from WhisperX output.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words,omitempty"`
}

type payload struct {
	Segments []Segment `json:"segments"`
}

// LoadSegments loads segments from a WhisperX JSON file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, err
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}
	return p.Segments, nil
}
