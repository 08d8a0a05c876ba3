package tts

import (
	"bytes"
	"context"
	"fmt"
)

// Synthesize is a request/response convenience wrapper around
// Provider.SynthesizeStream for callers that have the full text up front and
// do not need incremental audio — the REST /v1/tts/synthesize endpoint is
// the primary caller. It feeds text as a single item on the provider's
// streaming input, drains the resulting audio channel, and concatenates the
// result.
//
// Deliberately a package-level function rather than a Provider method: every
// concrete implementation already satisfies this in terms of
// SynthesizeStream, so adding it to the interface would mean touching every
// implementation (and its tests/mocks) for no behavioral gain.
func Synthesize(ctx context.Context, p Provider, text string, voice VoiceProfile) ([]byte, error) {
	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	audioCh, err := p.SynthesizeStream(ctx, textCh, voice)
	if err != nil {
		return nil, fmt.Errorf("tts: synthesize: %w", err)
	}

	var buf bytes.Buffer
	for chunk := range audioCh {
		buf.Write(chunk)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tts: synthesize: %w", err)
	}
	return buf.Bytes(), nil
}
