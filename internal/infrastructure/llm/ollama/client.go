package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/resilience"
)

const ocrInstruction = `Transcribe all text visible in this image exactly as written, preserving line breaks.
Keep Korean and English text as-is. Output only the transcribed text, with no commentary.
If the image has no text, output nothing.`

type Options struct {
	VisionModel string
	Timeout     time.Duration
	Executor    *resilience.Executor
}

// Client talks to Ollama's /api/generate endpoint for both chat answers and OCR.
type Client struct {
	baseURL     string
	model       string
	visionModel string
	httpClient  *http.Client
	executor    *resilience.Executor
}

func New(baseURL, model string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	vision := opts.VisionModel
	if vision == "" {
		vision = model
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		visionModel: vision,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    opts.Executor,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Images  []string       `json:"images,omitempty"`
	Format  string         `json:"format,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

func (c *Client) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	req := generateRequest{
		Model:  c.model,
		Prompt: renderTurns(prompt.Turns),
		System: prompt.System,
	}
	if prompt.JSON {
		req.Format = "json"
	}
	if prompt.MaxTokens > 0 {
		req.Options = map[string]any{"num_predict": prompt.MaxTokens}
	}
	return c.generate(ctx, "ollama.generate", req)
}

// RecognizeText runs the vision model over a single image.
func (c *Client) RecognizeText(ctx context.Context, image []byte, _ string) (string, error) {
	if len(image) == 0 {
		return "", nil
	}
	req := generateRequest{
		Model:   c.visionModel,
		Prompt:  ocrInstruction,
		Images:  []string{base64.StdEncoding.EncodeToString(image)},
		Options: map[string]any{"temperature": 0},
	}
	return c.generate(ctx, "ollama.ocr", req)
}

func (c *Client) generate(ctx context.Context, operation string, req generateRequest) (string, error) {
	out, err := resilience.Call(ctx, c.executor, operation, func(ctx context.Context) (string, error) {
		var response struct {
			Response string `json:"response"`
		}
		if err := c.postJSON(ctx, "/api/generate", req, &response, strings.TrimPrefix(operation, "ollama.")); err != nil {
			return "", err
		}
		return strings.TrimSpace(response.Response), nil
	}, classifyOllamaError)
	if err != nil {
		return "", wrapUpstream(operation, err)
	}
	return out, nil
}

func (c *Client) String() string {
	return fmt.Sprintf("ollama(%s)", c.model)
}
