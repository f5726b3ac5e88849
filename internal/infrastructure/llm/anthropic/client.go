// Package anthropic adapts the Claude Messages API to the language model port.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
	"github.com/kirillkom/doc-chat-service/internal/infrastructure/resilience"
)

const defaultMaxTokens = 1024

type Options struct {
	APIKey   string
	Model    string
	BaseURL  string
	Executor *resilience.Executor
}

type Client struct {
	client   anthropic.Client
	model    string
	executor *resilience.Executor
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	// retries are owned by the resilience executor
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey), option.WithMaxRetries(0)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &Client{client: anthropic.NewClient(reqOpts...), model: opts.Model, executor: opts.Executor}, nil
}

func (c *Client) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	maxTokens := prompt.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages:  toMessages(prompt.Turns),
	}
	system := prompt.System
	if prompt.JSON {
		system = strings.TrimSpace(system + "\nRespond with a single JSON object and nothing else.")
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	text, err := resilience.Call(ctx, c.executor, "anthropic.generate", func(ctx context.Context) (string, error) {
		msg, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		return strings.TrimSpace(b.String()), nil
	}, classifyAnthropicError)
	if err != nil {
		if resilience.IsContextError(err) {
			return "", err
		}
		if classifyAnthropicError(err).Retryable {
			err = domain.WrapError(domain.ErrTemporary, "anthropic generate", err)
		}
		return "", domain.WrapError(domain.ErrUpstreamUnavailable, "anthropic generate", err)
	}
	return text, nil
}

// toMessages keeps the conversation alternating, which the Messages API requires,
// by merging consecutive turns of the same role.
func toMessages(turns []domain.ChatTurn) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(turns))
	var lastRole domain.ChatRole
	var pending []string
	flush := func() {
		if len(pending) == 0 {
			return
		}
		block := anthropic.NewTextBlock(strings.Join(pending, "\n\n"))
		if lastRole == domain.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
		pending = nil
	}
	for _, turn := range turns {
		role := turn.Role
		if role != domain.RoleAssistant {
			role = domain.RoleUser
		}
		if len(out) == 0 && len(pending) == 0 && role == domain.RoleAssistant {
			continue
		}
		if role != lastRole {
			flush()
			lastRole = role
		}
		pending = append(pending, turn.Content)
	}
	flush()
	return out
}

func classifyAnthropicError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if resilience.IsContextError(err) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		retryable := code == http.StatusTooManyRequests || code == 529 || code >= 500
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
