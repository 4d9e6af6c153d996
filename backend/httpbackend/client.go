// Package httpbackend implements backend.Backend over JSON POST requests to
// {base}/api/{command}. Responses are validated against embedded JSON
// schemas before they are decoded. Requests are never retried.
package httpbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gogpu/retouch/backend"
	"github.com/gogpu/retouch/document"
	"github.com/gogpu/retouch/internal/logging"
)

// Errors returned by the client.
var (
	// ErrStatus is returned for a non-2xx response.
	ErrStatus = errors.New("httpbackend: unexpected status")

	// ErrInvalidResponse is returned when a response fails schema validation.
	ErrInvalidResponse = errors.New("httpbackend: invalid response")
)

// DefaultTimeout bounds a single request when no http.Client is supplied.
// Inpainting a large page can take a while.
const DefaultTimeout = 5 * time.Minute

// maxErrorBody caps how much of an error response is kept in the message.
const maxErrorBody = 512

// Option configures a Client.
type Option func(*options)

type options struct {
	client *http.Client
	header http.Header
}

// WithHTTPClient sets the http.Client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		if c != nil {
			o.client = c
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.header.Add(key, value)
	}
}

// Client talks to the processing backend.
type Client struct {
	base    string
	client  *http.Client
	header  http.Header
	schemas schemas
}

var _ backend.Backend = (*Client)(nil)

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("httpbackend: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("httpbackend: base url %q: scheme must be http or https", baseURL)
	}
	o := options{
		client: &http.Client{Timeout: DefaultTimeout},
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(&o)
	}
	s, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		client:  o.client,
		header:  o.header,
		schemas: s,
	}, nil
}

// Wire command names.
const (
	cmdDetect           = "detect"
	cmdOCR              = "ocr"
	cmdInpaint          = "inpaint"
	cmdInpaintPartial   = "inpaint_partial"
	cmdUpdateMask       = "update_inpaint_mask"
	cmdUpdateBrushLayer = "update_brush_layer"
	cmdUpdateTextBlocks = "update_text_blocks"
	cmdRender           = "render"
	cmdLLMList          = "llm_list"
	cmdLLMLoad          = "llm_load"
	cmdLLMOffload       = "llm_offload"
	cmdLLMReady         = "llm_ready"
	cmdLLMGenerate      = "llm_generate"
)

type indexArgs struct {
	Index int `json:"index"`
}

type maskArgs struct {
	Index  int              `json:"index"`
	Mask   []byte           `json:"mask"`
	Region *document.Region `json:"region,omitempty"`
}

type brushArgs struct {
	Index  int             `json:"index"`
	Patch  []byte          `json:"patch"`
	Region document.Region `json:"region"`
}

type regionArgs struct {
	Index  int             `json:"index"`
	Region document.Region `json:"region"`
}

type textBlocksArgs struct {
	Index      int                  `json:"index"`
	TextBlocks []document.TextBlock `json:"textBlocks"`
}

type renderArgs struct {
	Index int `json:"index"`
	backend.RenderRequest
}

type generateArgs struct {
	Index int `json:"index"`
	backend.TranslateRequest
}

type loadArgs struct {
	ID string `json:"id"`
}

// Detect implements backend.ProcessBackend.
func (c *Client) Detect(ctx context.Context, doc int) (*document.Snapshot, error) {
	return c.snapshot(ctx, cmdDetect, indexArgs{Index: doc})
}

// Recognize implements backend.ProcessBackend.
func (c *Client) Recognize(ctx context.Context, doc int) (*document.Snapshot, error) {
	return c.snapshot(ctx, cmdOCR, indexArgs{Index: doc})
}

// Inpaint implements backend.ProcessBackend.
func (c *Client) Inpaint(ctx context.Context, doc int) (*document.Snapshot, error) {
	return c.snapshot(ctx, cmdInpaint, indexArgs{Index: doc})
}

// InpaintPartial implements backend.ProcessBackend.
func (c *Client) InpaintPartial(ctx context.Context, doc int, region document.Region) (*document.Snapshot, error) {
	return c.snapshot(ctx, cmdInpaintPartial, regionArgs{Index: doc, Region: region})
}

// Translate implements backend.ProcessBackend.
func (c *Client) Translate(ctx context.Context, doc int, req backend.TranslateRequest) (*document.Snapshot, error) {
	return c.snapshot(ctx, cmdLLMGenerate, generateArgs{Index: doc, TranslateRequest: req})
}

// Render implements backend.ProcessBackend.
func (c *Client) Render(ctx context.Context, doc int, req backend.RenderRequest) (*document.Snapshot, error) {
	if req.Effect == "" {
		req.Effect = document.EffectNormal
	}
	return c.snapshot(ctx, cmdRender, renderArgs{Index: doc, RenderRequest: req})
}

// UpdateTextBlocks implements backend.EditBackend.
func (c *Client) UpdateTextBlocks(ctx context.Context, doc int, blocks []document.TextBlock) (*document.Snapshot, error) {
	if blocks == nil {
		blocks = []document.TextBlock{}
	}
	return c.snapshot(ctx, cmdUpdateTextBlocks, textBlocksArgs{Index: doc, TextBlocks: blocks})
}

// UpdateMask implements backend.EditBackend.
func (c *Client) UpdateMask(ctx context.Context, doc int, data []byte, region *document.Region) (*document.Snapshot, error) {
	return c.snapshot(ctx, cmdUpdateMask, maskArgs{Index: doc, Mask: data, Region: region})
}

// UpdateBrushLayer implements backend.EditBackend.
func (c *Client) UpdateBrushLayer(ctx context.Context, doc int, patch []byte, region document.Region) (*document.Snapshot, error) {
	return c.snapshot(ctx, cmdUpdateBrushLayer, brushArgs{Index: doc, Patch: patch, Region: region})
}

// ListModels implements backend.GenerationBackend.
func (c *Client) ListModels(ctx context.Context) ([]backend.ModelInfo, error) {
	var models []backend.ModelInfo
	if err := c.call(ctx, cmdLLMList, struct{}{}, schemaModels, &models); err != nil {
		return nil, err
	}
	return models, nil
}

// LoadModel implements backend.GenerationBackend.
func (c *Client) LoadModel(ctx context.Context, id string) error {
	return c.call(ctx, cmdLLMLoad, loadArgs{ID: id}, "", nil)
}

// Unload implements backend.GenerationBackend.
func (c *Client) Unload(ctx context.Context) error {
	return c.call(ctx, cmdLLMOffload, struct{}{}, "", nil)
}

// Ready implements backend.GenerationBackend.
func (c *Client) Ready(ctx context.Context) (bool, error) {
	var ready bool
	if err := c.call(ctx, cmdLLMReady, struct{}{}, schemaReady, &ready); err != nil {
		return false, err
	}
	return ready, nil
}

func (c *Client) snapshot(ctx context.Context, cmd string, args any) (*document.Snapshot, error) {
	snap := new(document.Snapshot)
	if err := c.call(ctx, cmd, args, schemaSnapshot, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// call posts args to the command endpoint. When schema is set the response
// body is validated and decoded into out; otherwise it is discarded.
func (c *Client) call(ctx context.Context, cmd string, args any, schema string, out any) error {
	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("httpbackend: %s: encode: %w", cmd, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/"+cmd, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("httpbackend: %s: %w", cmd, err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("httpbackend: %s: %w", cmd, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpbackend: %s: read: %w", cmd, err)
	}
	logging.Logger().Debug("httpbackend: call",
		"command", cmd, "status", resp.StatusCode,
		"bytes", len(data), "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data[:min(len(data), maxErrorBody)]))
		return fmt.Errorf("%w: %s: %d %s", ErrStatus, cmd, resp.StatusCode, msg)
	}
	if schema == "" {
		return nil
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, cmd, err)
	}
	if err := c.schemas[schema].Validate(instance); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, cmd, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, cmd, err)
	}
	return nil
}
