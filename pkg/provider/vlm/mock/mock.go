// Package mock provides a test double for the vlm.Provider interface.
//
// Use Provider in unit tests to verify that the REST/VLM adapter sends correct
// AnalyzeRequests and to feed controlled responses without a live VLM backend.
//
// Example:
//
//	p := &mock.Provider{
//	    AnalyzeResponse: &vlm.AnalyzeResponse{Description: "a cat on a windowsill"},
//	}
//	resp, err := p.Analyze(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/aurelia-labs/aurelia/pkg/provider/vlm"
)

// AnalyzeCall records a single invocation of Analyze.
type AnalyzeCall struct {
	// Ctx is the context passed to Analyze.
	Ctx context.Context
	// Req is the AnalyzeRequest passed to Analyze.
	Req vlm.AnalyzeRequest
}

// Provider is a mock implementation of vlm.Provider.
type Provider struct {
	mu sync.Mutex

	// AnalyzeResponse is returned by Analyze. May be nil.
	AnalyzeResponse *vlm.AnalyzeResponse

	// AnalyzeErr, if non-nil, is returned as the error from Analyze.
	AnalyzeErr error

	// AnalyzeCalls records every invocation of Analyze in order.
	AnalyzeCalls []AnalyzeCall
}

// Analyze records the call and returns AnalyzeResponse, AnalyzeErr.
func (p *Provider) Analyze(ctx context.Context, req vlm.AnalyzeRequest) (*vlm.AnalyzeResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AnalyzeCalls = append(p.AnalyzeCalls, AnalyzeCall{Ctx: ctx, Req: req})
	return p.AnalyzeResponse, p.AnalyzeErr
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AnalyzeCalls = nil
}

// Ensure Provider implements vlm.Provider at compile time.
var _ vlm.Provider = (*Provider)(nil)
