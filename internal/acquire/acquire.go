package acquire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"stepweave/internal/config"
	"stepweave/internal/fileutil"
	"stepweave/internal/logging"
	"stepweave/internal/model"
	"stepweave/internal/services"
	"stepweave/internal/services/whisperx"
)

// File names inside a source directory.
const (
	VideoFile    = "video.mp4"
	MetadataFile = "metadata.json"
	FramesDir    = "frames"
)

// Acquirer materialises a source for a locator. Acquire is idempotent.
type Acquirer interface {
	Acquire(ctx context.Context, locator string) (*model.Source, error)
}

// Transcriber produces dir/transcript.json from a video.
type Transcriber interface {
	Transcribe(ctx context.Context, video, dir, lang string) (string, error)
}

// Local reads sources from the media directory.
type Local struct {
	mediaDir    string
	transcriber Transcriber
	language    string
	logger      *slog.Logger
}

// Option configures a Local acquirer.
type Option func(*Local)

// WithTranscriber enables transcription of sources that only carry a video.
func WithTranscriber(t Transcriber) Option {
	return func(l *Local) { l.transcriber = t }
}

// WithLanguage passes a language hint to the transcriber.
func WithLanguage(lang string) Option {
	return func(l *Local) { l.language = strings.TrimSpace(lang) }
}

// WithLogger sets the acquirer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Local) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLocal creates an acquirer rooted at mediaDir.
func NewLocal(mediaDir string, opts ...Option) *Local {
	l := &Local{mediaDir: mediaDir, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.NewComponentLogger(l.logger, "acquire")
	return l
}

// FromConfig builds the acquirer the pipeline uses. WhisperX is attached
// only when transcription is enabled.
func FromConfig(cfg *config.Config, logger *slog.Logger) *Local {
	opts := []Option{WithLogger(logger)}
	if cfg.Transcription.Enabled {
		opts = append(opts, WithTranscriber(whisperx.NewService(whisperx.Config{
			Model:        cfg.Transcription.Model,
			CUDAEnabled:  cfg.Transcription.CUDAEnabled,
			VADMethod:    cfg.Transcription.VADMethod,
			HFToken:      cfg.Transcription.HFToken,
			FFmpegBinary: cfg.Transcription.FFmpegBinary,
		})))
	}
	return NewLocal(cfg.Paths.MediaDir, opts...)
}

var idSeparators = regexp.MustCompile(`[/=]`)

// SourceID derives a source id from the last element of a locator split on
// "/" or "=".
func SourceID(locator string) string {
	parts := idSeparators.Split(strings.TrimRight(strings.TrimSpace(locator), "/"), -1)
	return parts[len(parts)-1]
}

// Dir returns the materialised directory for a source id.
func (l *Local) Dir(id string) string {
	return filepath.Join(l.mediaDir, id)
}

// Acquire reads the source for locator.
func (l *Local) Acquire(ctx context.Context, locator string) (*model.Source, error) {
	id := SourceID(locator)
	if id == "" {
		return nil, services.Wrap(services.ErrAcquisition, "acquire", "resolve id", fmt.Sprintf("locator %q has no id", locator), nil)
	}
	dir := l.Dir(id)
	logger := l.logger.With(logging.String(logging.FieldSourceID, id))

	if err := l.importLocal(locator, dir); err != nil {
		return nil, services.Wrap(services.ErrAcquisition, "acquire", "import", locator, err)
	}

	transcript := filepath.Join(dir, whisperx.TranscriptFile)
	if !exists(transcript) {
		video := filepath.Join(dir, VideoFile)
		if l.transcriber == nil || !exists(video) {
			return nil, services.Wrap(services.ErrAcquisition, "acquire", "read transcript",
				fmt.Sprintf("%s is missing", transcript), fs.ErrNotExist)
		}
		logger.Info("transcribing source", logging.String("video", video))
		path, err := l.transcriber.Transcribe(ctx, video, dir, l.language)
		if err != nil {
			return nil, services.Wrap(services.ErrAcquisition, "acquire", "transcribe", id, err)
		}
		transcript = path
	}

	segments, err := whisperx.LoadSegments(transcript)
	if err != nil {
		return nil, services.Wrap(services.ErrAcquisition, "acquire", "read transcript", id, err)
	}

	src := model.NewSource(id, locator)
	sentences, unmatched := Sentences(segments)
	for _, text := range unmatched {
		logging.WarnWithContext(logger, "sentence not found in transcript", "transcript_alignment",
			logging.String("sentence", text),
			logging.String(logging.FieldImpact, "sentence dropped from source"),
			logging.String(logging.FieldErrorHint, "check transcript.json segment text"),
		)
	}
	src.Sentences = sentences

	frames, err := readFrames(filepath.Join(dir, FramesDir))
	if err != nil {
		return nil, services.Wrap(services.ErrAcquisition, "acquire", "read frames", id, err)
	}
	src.Frames = frames

	meta, err := readMetadata(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, services.Wrap(services.ErrAcquisition, "acquire", "read metadata", id, err)
	}
	src.Title = meta.Title
	src.Duration = meta.Duration
	if src.Duration == 0 && len(src.Sentences) > 0 {
		src.Duration = src.Sentences[len(src.Sentences)-1].End
	}

	slices.SortStableFunc(src.Sentences, func(a, b model.Sentence) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		}
		return 0
	})
	src.AssignSentenceIDs()

	logger.Debug("source acquired",
		logging.Int("sentences", len(src.Sentences)),
		logging.Int("frames", len(src.Frames)),
	)
	return src, nil
}

// importLocal copies a locator that names a local source directory into
// dir. An already materialised dir is left alone.
func (l *Local) importLocal(locator, dir string) error {
	info, err := os.Stat(locator)
	if err != nil || !info.IsDir() {
		return nil
	}
	srcDir, err := filepath.Abs(locator)
	if err != nil {
		return err
	}
	dstDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if srcDir == dstDir || exists(filepath.Join(dstDir, whisperx.TranscriptFile)) {
		return nil
	}
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil || d.IsDir() {
			return walkErr
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		return fileutil.CopyFile(path, filepath.Join(dstDir, rel))
	})
}

type metadata struct {
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

func readMetadata(path string) (metadata, error) {
	var meta metadata
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return meta, nil
	}
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parse %s: %w", path, err)
	}
	return meta, nil
}

// readFrames lists dir/<second>.jpg ordered by second. Other files are
// ignored and a missing directory yields no frames.
func readFrames(dir string) ([]model.Frame, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.Frame{}, nil
	}
	if err != nil {
		return nil, err
	}
	frames := make([]model.Frame, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), ".jpg") {
			continue
		}
		second, err := strconv.Atoi(strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			continue
		}
		frames = append(frames, model.Frame{Second: second, Path: filepath.Join(dir, name)})
	}
	slices.SortFunc(frames, func(a, b model.Frame) int { return a.Second - b.Second })
	return frames, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
