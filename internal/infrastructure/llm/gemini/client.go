// Package gemini adapts Google's Gemini API to the language model and OCR ports.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/resilience"
)

const ocrInstruction = "Transcribe all text visible in this image exactly as written, preserving line breaks. Output only the text."

type Options struct {
	APIKey      string
	Model       string
	VisionModel string
	BaseURL     string
	Executor    *resilience.Executor
}

type Client struct {
	client      *genai.Client
	model       string
	visionModel string
	executor    *resilience.Executor
}

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	cfg := &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	vision := opts.VisionModel
	if vision == "" {
		vision = opts.Model
	}
	return &Client{client: client, model: opts.Model, visionModel: vision, executor: opts.Executor}, nil
}

func (c *Client) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	config := &genai.GenerateContentConfig{}
	if prompt.System != "" {
		config.SystemInstruction = genai.NewContentFromText(prompt.System, genai.RoleUser)
	}
	if prompt.MaxTokens > 0 {
		config.MaxOutputTokens = int32(prompt.MaxTokens)
	}
	if prompt.JSON {
		config.ResponseMIMEType = "application/json"
	}

	contents := make([]*genai.Content, 0, len(prompt.Turns))
	for _, turn := range prompt.Turns {
		role := genai.Role(genai.RoleUser)
		if turn.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	return c.generate(ctx, "gemini.generate", c.model, contents, config)
}

func (c *Client) RecognizeText(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", nil
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText(ocrInstruction),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{Temperature: genai.Ptr(float32(0))}
	return c.generate(ctx, "gemini.ocr", c.visionModel, contents, config)
}

func (c *Client) generate(ctx context.Context, operation, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (string, error) {
	text, err := resilience.Call(ctx, c.executor, operation, func(ctx context.Context) (string, error) {
		resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(responseText(resp)), nil
	}, classifyGeminiError)
	if err != nil {
		if resilience.IsContextError(err) {
			return "", err
		}
		if classifyGeminiError(err).Retryable {
			err = domain.WrapError(domain.ErrTemporary, operation, err)
		}
		return "", domain.WrapError(domain.ErrUpstreamUnavailable, operation, err)
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" && !part.Thought {
				b.WriteString(part.Text)
			}
		}
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}

func classifyGeminiError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if resilience.IsContextError(err) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		retryable := apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
