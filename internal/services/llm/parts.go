package llm

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Part is one element of a multimodal user message.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by URL or data URI.
type ImageURL struct {
	URL string `json:"url"`
}

// Text returns a text part.
func Text(text string) Part {
	return Part{Type: "text", Text: text}
}

// Textf returns a formatted text part.
func Textf(format string, args ...any) Part {
	return Text(fmt.Sprintf(format, args...))
}

// Image returns an image part for a URL or data URI.
func Image(url string) Part {
	return Part{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

// ImageFile inlines the image at path as a base64 data URI.
func ImageFile(path string) (Part, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Part{}, fmt.Errorf("read image %s: %w", path, err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return Image("data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)), nil
}
