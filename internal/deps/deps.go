// Package deps reports whether the external binaries stepweave shells out to
// are installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"stepweave/internal/config"
	"stepweave/internal/services/whisperx"
)

// Requirement is one external binary.
type Requirement struct {
	Name        string
	Command     string
	Description string
	// Optional requirements only matter when their feature is enabled.
	Optional bool
}

// Status reports the availability of a requirement.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// Requirements lists the binaries the configured transcription fallback
// needs. They are optional while transcription is disabled.
func Requirements(cfg *config.Config) []Requirement {
	optional := !cfg.Transcription.Enabled
	ffmpeg := strings.TrimSpace(cfg.Transcription.FFmpegBinary)
	if ffmpeg == "" {
		ffmpeg = whisperx.FFmpegCommand
	}
	return []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, Description: "Extracts audio for transcription", Optional: optional},
		{Name: "uvx", Command: whisperx.UVXCommand, Description: "Runs WhisperX", Optional: optional},
	}
}

// CheckBinaries resolves every requirement on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		status := Status{Requirement: req}
		switch {
		case req.Command == "":
			status.Detail = "command not configured"
		default:
			if _, err := exec.LookPath(req.Command); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", req.Command)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the unavailable statuses that are not optional.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}
