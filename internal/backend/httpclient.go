package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the Generative Language REST root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// VeoClipSeconds is the fixed duration requested for every clip.
const VeoClipSeconds = 8

// Compile-time interface checks.
var (
	_ StreamGenerator = (*RESTClient)(nil)
	_ JobPoller       = (*RESTClient)(nil)
	_ ImageGenerator  = (*RESTClient)(nil)
	_ VideoGenerator  = (*RESTClient)(nil)
)

// RESTClient talks to the REST endpoints the Go SDK does not cover: streamed
// research interactions, image generation with inline references and Veo
// long-running operations.
type RESTClient struct {
	http    *http.Client
	stream  *http.Client
	baseURL string
	apiKey  string
}

// ClientOption configures a RESTClient.
type ClientOption func(*RESTClient)

// WithTimeout sets the timeout for non-streaming requests.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *RESTClient) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces both underlying clients.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *RESTClient) {
		c.http = hc
		c.stream = hc
	}
}

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) ClientOption {
	return func(c *RESTClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithAPIKey sets the key sent in the x-goog-api-key header.
func WithAPIKey(key string) ClientOption {
	return func(c *RESTClient) {
		c.apiKey = key
	}
}

// NewRESTClient creates a client. Streams use a client without a timeout;
// their lifetime is bounded by the request context.
func NewRESTClient(opts ...ClientOption) *RESTClient {
	c := &RESTClient{
		http:    &http.Client{Timeout: 120 * time.Second},
		stream:  &http.Client{},
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ---------------------------------------------------------------------------
// Research interactions
// ---------------------------------------------------------------------------

type interactionRequest struct {
	Input      string `json:"input"`
	Agent      string `json:"agent"`
	Background bool   `json:"background"`
	Stream     bool   `json:"stream"`
}

// Stream starts a background research interaction and returns its events.
func (c *RESTClient) Stream(ctx context.Context, req StreamRequest) (<-chan StreamEvent, error) {
	body, err := json.Marshal(interactionRequest{Input: req.Prompt, Agent: req.Agent, Background: true, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("backend: marshal interaction: %w", err)
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/interactions?alt=sse", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend: open interaction stream: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, statusError("interactions.stream", resp)
	}
	return ReadEvents(ctx, resp.Body), nil
}

type interactionStatus struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Outputs []struct {
		Text string `json:"text"`
	} `json:"outputs"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type operationStatus struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

// Status polls either a research interaction or a video operation; video
// operation handles are resource names containing "operations/".
func (c *RESTClient) Status(ctx context.Context, handle string) (JobStatus, error) {
	if strings.Contains(handle, "operations/") {
		return c.operationStatus(ctx, handle)
	}
	var st interactionStatus
	if err := c.getJSON(ctx, "interactions.get", c.baseURL+"/interactions/"+handle, &st); err != nil {
		return JobStatus{}, err
	}
	out := JobStatus{State: ParseJobState(st.Status)}
	if n := len(st.Outputs); n > 0 {
		out.Result = st.Outputs[n-1].Text
	}
	if st.Error != nil {
		out.Error = st.Error.Message
	}
	if out.State == JobCompleted && out.Result == "" {
		out.State = JobFailed
		out.Error = "interaction completed without output"
	}
	return out, nil
}

func (c *RESTClient) operationStatus(ctx context.Context, name string) (JobStatus, error) {
	var op operationStatus
	if err := c.getJSON(ctx, "operations.get", c.baseURL+"/"+strings.TrimLeft(name, "/"), &op); err != nil {
		return JobStatus{}, err
	}
	switch {
	case !op.Done:
		return JobStatus{State: JobRunning}, nil
	case op.Error != nil:
		return JobStatus{State: JobFailed, Error: op.Error.Message}, nil
	case op.Response == nil || len(op.Response.GenerateVideoResponse.GeneratedSamples) == 0:
		return JobStatus{State: JobFailed, Error: "operation finished without a video"}, nil
	}
	return JobStatus{State: JobCompleted, Result: op.Response.GenerateVideoResponse.GeneratedSamples[0].Video.URI}, nil
}

// ---------------------------------------------------------------------------
// Images
// ---------------------------------------------------------------------------

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type contentPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type generateContentRequest struct {
	Contents []struct {
		Parts []contentPart `json:"parts"`
	} `json:"contents"`
	GenerationConfig map[string]any `json:"generationConfig,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []contentPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateImage asks an image model for one still. Reference images are sent
// inline ahead of the prompt. A response without image data yields nil.
func (c *RESTClient) GenerateImage(ctx context.Context, req ImageRequest) ([]byte, error) {
	parts := make([]contentPart, 0, len(req.References)+1)
	for _, ref := range req.References {
		parts = append(parts, contentPart{InlineData: pngData(ref)})
	}
	parts = append(parts, contentPart{Text: req.Prompt})

	var body generateContentRequest
	body.Contents = append(body.Contents, struct {
		Parts []contentPart `json:"parts"`
	}{Parts: parts})
	cfg := map[string]any{"responseModalities": []string{"IMAGE"}}
	if req.AspectRatio != "" {
		cfg["imageConfig"] = map[string]string{"aspectRatio": req.AspectRatio}
	}
	body.GenerationConfig = cfg

	var resp generateContentResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, req.Model)
	if err := c.postJSON(ctx, "images.generate", url, body, &resp); err != nil {
		return nil, err
	}
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			img, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("backend: decode image: %w", err)
			}
			return img, nil
		}
	}
	return nil, nil
}

// ---------------------------------------------------------------------------
// Video
// ---------------------------------------------------------------------------

type veoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type veoReference struct {
	Image         veoImage `json:"image"`
	ReferenceType string   `json:"referenceType"`
}

type veoInstance struct {
	Prompt          string         `json:"prompt"`
	Image           *veoImage      `json:"image,omitempty"`
	LastFrame       *veoImage      `json:"lastFrame,omitempty"`
	ReferenceImages []veoReference `json:"referenceImages,omitempty"`
}

type veoRequest struct {
	Instances  []veoInstance  `json:"instances"`
	Parameters map[string]any `json:"parameters"`
}

// MaxVideoReferences is the most reference images a clip request carries.
const MaxVideoReferences = 3

// SubmitVideo starts a clip generation and returns the operation name.
func (c *RESTClient) SubmitVideo(ctx context.Context, req VideoRequest) (string, error) {
	inst := veoInstance{Prompt: req.Prompt}
	if len(req.FirstFrame) > 0 {
		inst.Image = veoPNG(req.FirstFrame)
		if len(req.LastFrame) > 0 {
			inst.LastFrame = veoPNG(req.LastFrame)
		}
	} else {
		for i, ref := range req.References {
			if i == MaxVideoReferences {
				break
			}
			inst.ReferenceImages = append(inst.ReferenceImages, veoReference{Image: *veoPNG(ref), ReferenceType: "asset"})
		}
	}
	params := map[string]any{"durationSeconds": VeoClipSeconds}
	if req.AspectRatio != "" {
		params["aspectRatio"] = req.AspectRatio
	}

	var op operationStatus
	url := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, req.Model)
	if err := c.postJSON(ctx, "videos.submit", url, veoRequest{Instances: []veoInstance{inst}, Parameters: params}, &op); err != nil {
		return "", err
	}
	if op.Name == "" {
		return "", fmt.Errorf("backend: video submit returned no operation name")
	}
	return op.Name, nil
}

// FetchVideo downloads a finished clip by its asset URI.
func (c *RESTClient) FetchVideo(ctx context.Context, asset string) ([]byte, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, asset, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend: download video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, statusError("videos.download", resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: read video: %w", err)
	}
	return data, nil
}

// ---------------------------------------------------------------------------
// plumbing
// ---------------------------------------------------------------------------

func pngData(b []byte) *inlineData {
	return &inlineData{MimeType: "image/png", Data: base64.StdEncoding.EncodeToString(b)}
}

func veoPNG(b []byte) *veoImage {
	return &veoImage{MimeType: "image/png", BytesBase64Encoded: base64.StdEncoding.EncodeToString(b)}
}

func (c *RESTClient) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("backend: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}
	return req, nil
}

func (c *RESTClient) postJSON(ctx context.Context, op, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("backend: marshal %s: %w", op, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	return c.do(op, req, out)
}

func (c *RESTClient) getJSON(ctx context.Context, op, url string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return c.do(op, req, out)
}

func (c *RESTClient) do(op string, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(op, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode %s: %w", op, err)
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
}
