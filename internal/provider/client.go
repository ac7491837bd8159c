package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelboard/internal/scene"
)

const (
	defaultBaseURL         = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel           = "veo-3.1-generate-preview"
	defaultEnhancerModel   = "gemini-2.5-flash"
	defaultHTTPTimeout     = 30 * time.Second
	defaultDownloadTimeout = 5 * time.Minute
)

// Client implements Service over the Veo HTTP API.
type Client struct {
	apiKey         string
	baseURL        string
	model          string
	enhancerModel  string
	httpClient     *http.Client
	downloadClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
			c.downloadClient = client
		}
	}
}

// WithBaseURL overrides the default API base (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithModel overrides the default generation model.
func WithModel(model string) Option {
	return func(c *Client) {
		model = strings.TrimSpace(model)
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeouts overrides request and download timeouts.
func WithTimeouts(request, download time.Duration) Option {
	return func(c *Client) {
		if request > 0 {
			c.httpClient = &http.Client{Timeout: request}
		}
		if download > 0 {
			c.downloadClient = &http.Client{Timeout: download}
		}
	}
}

// NewClient constructs a Veo API client.
func NewClient(apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:         strings.TrimSpace(apiKey),
		baseURL:        defaultBaseURL,
		model:          defaultModel,
		enhancerModel:  defaultEnhancerModel,
		httpClient:     &http.Client{Timeout: defaultHTTPTimeout},
		downloadClient: &http.Client{Timeout: defaultDownloadTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type inlineImage struct {
	ImageBytes string `json:"imageBytes"`
	MimeType   string `json:"mimeType"`
}

type generateParameters struct {
	AspectRatio    string `json:"aspectRatio,omitempty"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
}

type generateInstance struct {
	Prompt    string       `json:"prompt"`
	Image     *inlineImage `json:"image,omitempty"`
	LastFrame *inlineImage `json:"lastFrame,omitempty"`
}

type generateRequest struct {
	Instances  []generateInstance `json:"instances"`
	Parameters generateParameters `json:"parameters"`
}

type operationVideo struct {
	URI string `json:"uri"`
}

type operationGenerated struct {
	Video operationVideo `json:"video"`
}

type operationResponse struct {
	GeneratedVideos         []operationGenerated `json:"generatedVideos"`
	RAIMediaFilteredCount   int                  `json:"raiMediaFilteredCount"`
	RAIMediaFilteredReasons []string             `json:"raiMediaFilteredReasons"`
}

type operationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type operationPayload struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Response *operationResponse `json:"response"`
	Error    *operationError    `json:"error"`
}

// Submit starts a long-running generation job. The returned handle is the
// provider's operation name.
func (c *Client) Submit(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("%w: prompt required", ErrRejected)
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}

	instance := generateInstance{Prompt: req.Prompt}
	switch req.FrameMode {
	case scene.FrameModeSingle, scene.FrameModeStartOnly:
		instance.Image = encodeImage(firstNonNil(req.Image, req.FirstFrame))
	case scene.FrameModeEndOnly:
		instance.LastFrame = encodeImage(req.LastFrame)
	case scene.FrameModeInterpolation:
		instance.Image = encodeImage(req.FirstFrame)
		instance.LastFrame = encodeImage(req.LastFrame)
	}

	payload := generateRequest{
		Instances: []generateInstance{instance},
		Parameters: generateParameters{
			AspectRatio:    req.AspectRatio,
			NegativePrompt: req.NegativePrompt,
		},
	}

	endpoint, err := url.JoinPath(c.baseURL, "models", model+":predictLongRunning")
	if err != nil {
		return "", fmt.Errorf("veo submit: build url: %w", err)
	}

	var op operationPayload
	if err := c.postJSON(ctx, endpoint, payload, &op); err != nil {
		return "", fmt.Errorf("veo submit: %w", err)
	}
	if strings.TrimSpace(op.Name) == "" {
		return "", fmt.Errorf("%w: provider returned no operation name", ErrRejected)
	}
	return op.Name, nil
}

// Status polls a long-running operation by handle.
func (c *Client) Status(ctx context.Context, handle string) (JobStatus, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return JobStatus{}, errors.New("veo status: handle required")
	}

	endpoint, err := url.JoinPath(c.baseURL, handle)
	if err != nil {
		return JobStatus{}, fmt.Errorf("veo status: build url: %w", err)
	}

	var op operationPayload
	if err := c.getJSON(ctx, endpoint, &op); err != nil {
		return JobStatus{}, fmt.Errorf("veo status: %w", err)
	}

	if !op.Done {
		return JobStatus{}, nil
	}
	if op.Error != nil {
		reason := strings.TrimSpace(op.Error.Message)
		if reason == "" {
			reason = fmt.Sprintf("provider error code %d", op.Error.Code)
		}
		return JobStatus{Done: true, FailureReason: reason}, nil
	}
	if op.Response != nil && op.Response.RAIMediaFilteredCount > 0 {
		reason := "content was filtered by safety policies"
		if len(op.Response.RAIMediaFilteredReasons) > 0 {
			reason = op.Response.RAIMediaFilteredReasons[0]
		}
		return JobStatus{Done: true, FailureReason: reason}, nil
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video.URI == "" {
		return JobStatus{Done: true, FailureReason: "generation completed but no video was returned"}, nil
	}
	return JobStatus{
		Done:          true,
		Success:       true,
		ResultLocator: op.Response.GeneratedVideos[0].Video.URI,
	}, nil
}

// Download fetches the finished asset behind a result locator.
func (c *Client) Download(ctx context.Context, locator string) ([]byte, string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, "", errors.New("veo download: locator required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, "", fmt.Errorf("veo download: request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("veo download: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("veo download: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("veo download: read body: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "video/mp4"
	}
	return data, mime, nil
}

type enhancePart struct {
	Text string `json:"text"`
}

type enhanceContent struct {
	Parts []enhancePart `json:"parts"`
}

type enhanceRequest struct {
	Contents []enhanceContent `json:"contents"`
}

type enhanceCandidate struct {
	Content enhanceContent `json:"content"`
}

type enhanceResponse struct {
	Candidates []enhanceCandidate `json:"candidates"`
}

// Enhance rewrites a prompt using the text model, folding the scene's
// frame configuration into the instruction.
func (c *Client) Enhance(ctx context.Context, prompt string, ec EnhanceContext) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("veo enhance: prompt required")
	}

	endpoint, err := url.JoinPath(c.baseURL, "models", c.enhancerModel+":generateContent")
	if err != nil {
		return "", fmt.Errorf("veo enhance: build url: %w", err)
	}

	payload := enhanceRequest{
		Contents: []enhanceContent{{
			Parts: []enhancePart{{Text: buildEnhanceInstruction(prompt, ec)}},
		}},
	}

	var parsed enhanceResponse
	if err := c.postJSON(ctx, endpoint, payload, &parsed); err != nil {
		return "", fmt.Errorf("veo enhance: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("veo enhance: empty response")
	}
	enhanced := strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text)
	if enhanced == "" {
		return "", errors.New("veo enhance: empty enhanced prompt")
	}
	return enhanced, nil
}

func buildEnhanceInstruction(prompt string, ec EnhanceContext) string {
	var b strings.Builder
	b.WriteString("Rewrite the following video generation prompt to be more cinematic and specific. ")
	b.WriteString("Keep the user's intent. Return only the rewritten prompt.\n")
	if ec.AspectRatio != "" {
		fmt.Fprintf(&b, "Aspect ratio: %s.\n", ec.AspectRatio)
	}
	switch {
	case ec.HasStartingFrame && ec.HasEndingFrame:
		b.WriteString("The video interpolates between a provided first and last frame.\n")
	case ec.HasStartingFrame:
		b.WriteString("The video starts from a provided reference frame.\n")
	case ec.HasEndingFrame:
		b.WriteString("The video ends on a provided reference frame.\n")
	}
	b.WriteString("\nPrompt: ")
	b.WriteString(prompt)
	return b.String()
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	req.Header.Set("x-goog-api-key", c.apiKey)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func encodeImage(img *ImageData) *inlineImage {
	if img == nil || len(img.Bytes) == 0 {
		return nil
	}
	mime := img.MimeType
	if mime == "" {
		mime = "image/png"
	}
	return &inlineImage{
		ImageBytes: base64.StdEncoding.EncodeToString(img.Bytes),
		MimeType:   mime,
	}
}

func firstNonNil(images ...*ImageData) *ImageData {
	for _, img := range images {
		if img != nil {
			return img
		}
	}
	return nil
}
