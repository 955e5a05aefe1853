package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic implements the Scanner interface using Claude vision
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	timeout   time.Duration
}

// NewAnthropic creates a new Anthropic Scanner instance.
// Extra request options (for example option.WithBaseURL) are passed to the client.
func NewAnthropic(apiKey string, modelName string, opts ...option.RequestOption) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if modelName == "" {
		modelName = "claude-sonnet-4-20250514"
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     modelName,
		maxTokens: 1000,
		timeout:   60 * time.Second,
	}, nil
}

// ScanReceipt analyzes a document and extracts its fields
func (a *Anthropic) ScanReceipt(ctx context.Context, data []byte, contentType string) (*Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	pngData, err := prepareImageData(data, contentType)
	if err != nil {
		return nil, err
	}

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(pngData)),
				anthropic.NewTextBlock(analysisPrompt),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calling anthropic API: %w", err)
	}

	var responseText strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText.WriteString(block.Text)
		}
	}
	if responseText.Len() == 0 {
		return nil, fmt.Errorf("no text content in anthropic response")
	}

	analysis, err := parseAnalysisJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("parsing analysis: %w", err)
	}
	return analysis, nil
}

// Close is a no-op for the HTTP client
func (a *Anthropic) Close() error {
	return nil
}
