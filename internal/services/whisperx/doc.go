// Package whisperx reads and produces WhisperX transcripts for narrated
// sources.
//
// LoadSegments parses the JSON segment list WhisperX writes. Service runs
// ffmpeg to pull a mono 16kHz track out of a video and then invokes
// WhisperX through uvx, leaving transcript.json next to the video so later
// runs read it directly.
package whisperx
