// Package vlm defines the Provider interface for Vision-Language Model backends.
//
// A VLM provider accepts a still image (a snapshot of the companion's camera
// feed or screen) alongside a text prompt and returns a textual description,
// mirroring the request/response shape of pkg/provider/llm rather than the
// streaming shape of pkg/provider/tts: a single analysis call has no useful
// intermediate output to stream.
//
// Implementations must be safe for concurrent use.
package vlm

import "context"

// AnalyzeRequest carries an image and an optional prompt to a VLM backend.
type AnalyzeRequest struct {
	// Image is the raw image bytes (PNG or JPEG).
	Image []byte

	// MimeType identifies the encoding of Image (e.g., "image/png", "image/jpeg").
	MimeType string

	// Prompt is an optional instruction guiding the analysis (e.g., "describe
	// what the user is doing"). Providers should supply a sensible default
	// when empty.
	Prompt string
}

// AnalyzeResponse is the textual result of analyzing an image.
type AnalyzeResponse struct {
	// Description is the model's natural-language description of the image.
	Description string

	// Tags are short keyword labels the model extracted, if supported.
	Tags []string
}

// Provider is the abstraction over any VLM backend.
type Provider interface {
	// Analyze sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails or if ctx is cancelled before the
	// response arrives.
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResponse, error)
}
