// Package openai provides a VLM provider backed by the OpenAI API's vision
// content blocks.
package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/aurelia-labs/aurelia/pkg/provider/vlm"
)

const defaultPrompt = "Describe what is visible in this image in one or two sentences."

// Provider implements vlm.Provider using the OpenAI API's vision support.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI VLM Provider. model must be a vision-capable
// model (e.g., "gpt-4o").
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Analyze implements vlm.Provider.
func (p *Provider) Analyze(ctx context.Context, req vlm.AnalyzeRequest) (*vlm.AnalyzeResponse, error) {
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("openai: image must not be empty")
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "image/png"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(req.Image))

	message := oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
		oai.TextContentPart(prompt),
		oai.ImageContentPart(oai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
	})

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{message},
	}
	params.MaxCompletionTokens = param.NewOpt(int64(512))

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: analyze image: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	return &vlm.AnalyzeResponse{
		Description: resp.Choices[0].Message.Content,
	}, nil
}

// Ensure Provider implements vlm.Provider at compile time.
var _ vlm.Provider = (*Provider)(nil)
