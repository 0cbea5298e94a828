package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/invopop/jsonschema"
	"golang.org/x/time/rate"

	"pixshop/internal/catalog"
	"pixshop/internal/domain"
	"pixshop/internal/infra"
	"pixshop/internal/metrics"
)

const (
	defaultBaseURL        = "https://generativelanguage.googleapis.com/v1beta"
	defaultImageModel     = "gemini-3-pro-image-preview"
	defaultFastImageModel = "gemini-2.5-flash-image"
	defaultTextModel      = "gemini-3-pro-preview"
	defaultFastTextModel  = "gemini-3-flash-preview"
)

// KeySource supplies the API key when none is configured.
type KeySource interface {
	GeminiAPIKey(ctx context.Context) (string, error)
}

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey         string
	Keys           KeySource
	BaseURL        string
	ImageModel     string
	FastImageModel string
	TextModel      string
	FastTextModel  string
	Timeout        time.Duration
	RPS            float64
	Burst          int
	HTTPClient     *http.Client
	Catalog        *catalog.Registry
	Logger         *infra.Logger
}

// Client talks to the Gemini generateContent endpoint.
type Client struct {
	apiKey  string
	keys    KeySource
	rest    *resty.Client
	limiter *rate.Limiter
	models  modelSet
	phrases catalog.Phrases
	logger  *infra.Logger
}

type modelSet struct {
	image, fastImage, text, fastText string
}

// ImageRequest is one image generation call.
type ImageRequest struct {
	Op                   string
	Prompt               string
	SystemInstruction    string
	Image                *ImageInput
	Mask                 *ImageInput
	AspectRatio          string
	NegativePrompt       string
	DenoisingInstruction string
	Fast                 bool
}

// ImageResult is the first image the service returned.
type ImageResult struct {
	Image ImageInput
	Text  string
	Model string
}

// StructuredRequest asks for JSON matching Schema, a Go value reflected into a
// JSON schema.
type StructuredRequest struct {
	Op                string
	Prompt            string
	SystemInstruction string
	Image             *ImageInput
	Schema            any
	Fast              bool
}

// ErrInvalidMask is returned when the inpaint mask is not a PNG image.
var ErrInvalidMask = errors.New("invalid mask data provided to generator")

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	Thought    bool              `json:"thought,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string           `json:"responseModalities,omitempty"`
	ResponseMimeType   string             `json:"responseMimeType,omitempty"`
	ResponseJSONSchema json.RawMessage    `json:"responseJsonSchema,omitempty"`
	ImageConfig        *geminiImageConfig `json:"imageConfig,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
		Status  string `json:"status,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; resty builds one.
func NewClient(opts Options) (*Client, error) {
	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	baseURL := strings.TrimRight(firstNonEmpty(opts.BaseURL, defaultBaseURL), "/")
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("genai: invalid base url: %w", err)
	}
	rc.SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "pixshop/1.0")

	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	reg := opts.Catalog
	if reg == nil {
		var err error
		if reg, err = catalog.Default(); err != nil {
			return nil, err
		}
	}

	return &Client{
		apiKey:  strings.TrimSpace(opts.APIKey),
		keys:    opts.Keys,
		rest:    rc,
		limiter: rate.NewLimiter(limit, burst),
		models: modelSet{
			image:     firstNonEmpty(opts.ImageModel, defaultImageModel),
			fastImage: firstNonEmpty(opts.FastImageModel, defaultFastImageModel),
			text:      firstNonEmpty(opts.TextModel, defaultTextModel),
			fastText:  firstNonEmpty(opts.FastTextModel, defaultFastTextModel),
		},
		phrases: reg.Phrases,
		logger:  infra.OrNop(opts.Logger),
	}, nil
}

// ImageModel returns the image model used for the given speed.
func (c *Client) ImageModel(fast bool) string {
	if fast {
		return c.models.fastImage
	}
	return c.models.image
}

// TextModel returns the text model used for the given speed.
func (c *Client) TextModel(fast bool) string {
	if fast {
		return c.models.fastText
	}
	return c.models.text
}

// GenerateImage sends one image request and returns the first image part.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	op := firstNonEmpty(req.Op, "generate_image")
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, domain.ErrEmptyPrompt
	}
	parts := []geminiPart{{Text: c.imagePrompt(req)}}
	if req.Image != nil && len(req.Image.Data) > 0 {
		parts = append(parts, req.Image.part())
	}
	if req.Mask != nil {
		if !req.Mask.IsPNG() {
			return nil, ErrInvalidMask
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: "image/png", Data: req.Mask.Base64()}})
	}

	aspect := strings.TrimSpace(req.AspectRatio)
	if aspect == "" {
		aspect = domain.DefaultAspectRatio
	}
	payload := geminiGenerateContentRequest{
		Contents:          []geminiContent{{Role: "user", Parts: parts}},
		SystemInstruction: systemContent(req.SystemInstruction),
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
			ImageConfig:        &geminiImageConfig{AspectRatio: aspect},
		},
	}

	model := c.ImageModel(req.Fast)
	resp, err := c.generate(ctx, op, model, payload)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				img, err := decodeInline(part.InlineData)
				if err != nil {
					return nil, &domain.MalformedResponseError{Op: op, Err: err}
				}
				return &ImageResult{Image: img, Text: strings.TrimSpace(text.String()), Model: model}, nil
			}
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
		}
	}
	return nil, domain.NoImageError(strings.TrimSpace(text.String()))
}

// GenerateJSON asks for a JSON document matching req.Schema and returns the
// raw text. Parsing is left to the caller.
func (c *Client) GenerateJSON(ctx context.Context, req StructuredRequest) (string, error) {
	op := firstNonEmpty(req.Op, "generate_json")
	cfg := &geminiGenerationConfig{ResponseMimeType: "application/json"}
	if req.Schema != nil {
		schema, err := reflectSchema(req.Schema)
		if err != nil {
			return "", fmt.Errorf("%s: reflect schema: %w", op, err)
		}
		cfg.ResponseJSONSchema = schema
	}
	parts := []geminiPart{{Text: req.Prompt}}
	if req.Image != nil && len(req.Image.Data) > 0 {
		parts = append(parts, req.Image.part())
	}
	payload := geminiGenerateContentRequest{
		Contents:          []geminiContent{{Role: "user", Parts: parts}},
		SystemInstruction: systemContent(req.SystemInstruction),
		GenerationConfig:  cfg,
	}
	resp, err := c.generate(ctx, op, c.TextModel(req.Fast), payload)
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

// GenerateText runs a plain text prompt.
func (c *Client) GenerateText(ctx context.Context, prompt string, fast bool) (string, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	resp, err := c.generate(ctx, "generate_text", c.TextModel(fast), payload)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(responseText(resp)), nil
}

// DescribeImage returns a short description of the image's subject.
func (c *Client) DescribeImage(ctx context.Context, img ImageInput, fast bool) (string, error) {
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{img.part(), {Text: c.phrases.DescribeImage}}}},
	}
	resp, err := c.generate(ctx, "describe_image", c.TextModel(fast), payload)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(responseText(resp)), nil
}

// imagePrompt appends the denoising directive and negative prompt unless the
// prompt already carries them.
func (c *Client) imagePrompt(req ImageRequest) string {
	prompt := strings.TrimSpace(req.Prompt)
	if d := strings.TrimSpace(req.DenoisingInstruction); d != "" && !strings.Contains(prompt, d) {
		prompt = joinDirective(prompt, d)
	}
	marker := c.phrases.NegativeMarker
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" && !strings.Contains(prompt, strings.TrimSpace(marker)) {
		prompt += marker + neg
	}
	return prompt
}

// joinDirective appends d as its own sentence after prompt.
func joinDirective(prompt, d string) string {
	if prompt == "" {
		return d
	}
	if !strings.ContainsAny(prompt[len(prompt)-1:], ".!?") {
		prompt += "."
	}
	return prompt + " " + d
}

func (c *Client) generate(ctx context.Context, op, model string, payload geminiGenerateContentRequest) (*geminiGenerateContentResponse, error) {
	start := time.Now()
	resp, err := c.invokeGemini(ctx, op, model, payload)
	outcome := "ok"
	switch {
	case err == nil:
	case domain.IsConfiguration(err):
		outcome = "config_error"
	default:
		outcome = "error"
	}
	metrics.GenerationCalls.WithLabelValues(op, model, outcome).Inc()
	metrics.GenerationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Str("model", model).Msg("genai: call failed")
		return nil, err
	}
	c.logger.Debug().Str("op", op).Str("model", model).Dur("elapsed", time.Since(start)).Msg("genai: call finished")
	return resp, nil
}

func (c *Client) invokeGemini(ctx context.Context, op, model string, payload geminiGenerateContentRequest) (*geminiGenerateContentResponse, error) {
	key, err := c.resolveKey(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.ServiceError{Op: op, Err: err}
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", key).
		SetBody(payload).
		Post("/models/" + url.PathEscape(model) + ":generateContent")
	if err != nil {
		return nil, &domain.ServiceError{Op: op, Err: err}
	}

	if resp.IsError() {
		var apiErr geminiErrorResponse
		msg := strings.TrimSpace(resp.String())
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return nil, &domain.ServiceError{Op: op, Status: resp.StatusCode(), Msg: msg}
	}

	var out geminiGenerateContentResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, &domain.MalformedResponseError{Op: op, Raw: resp.String(), Err: err}
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return nil, &domain.ServiceError{Op: op, Msg: "prompt blocked: " + out.PromptFeedback.BlockReason}
	}
	if len(out.Candidates) == 0 {
		return nil, &domain.ServiceError{Op: op, Msg: "no candidates returned"}
	}
	return &out, nil
}

func (c *Client) resolveKey(ctx context.Context) (string, error) {
	if c.apiKey != "" {
		return c.apiKey, nil
	}
	if c.keys != nil {
		key, err := c.keys.GeminiAPIKey(ctx)
		if err != nil {
			return "", &domain.ConfigurationError{Setting: "GEMINI_API_KEY", Msg: "credential lookup failed: " + err.Error()}
		}
		if key = strings.TrimSpace(key); key != "" {
			return key, nil
		}
	}
	return "", &domain.ConfigurationError{Setting: "GEMINI_API_KEY", Msg: "API key is missing"}
}

func systemContent(text string) *geminiContent {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return &geminiContent{Parts: []geminiPart{{Text: text}}}
}

func responseText(resp *geminiGenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Thought {
				continue
			}
			b.WriteString(part.Text)
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

func reflectSchema(v any) (json.RawMessage, error) {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	schema := reflector.Reflect(v)
	schema.Version = ""
	schema.ID = ""
	return schema.MarshalJSON()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
