// Package acquire turns source locators into transcribed sources.
//
// A source is materialised under <media_dir>/<id>/ as transcript.json
// (WhisperX segments), frames/<second>.jpg and an optional metadata.json.
// Local reads that directory, splits the transcript into timed sentences
// and attaches frames. When a locator names an existing local directory its
// files are imported first, and when only video.mp4 is present a configured
// transcriber produces transcript.json.
package acquire
