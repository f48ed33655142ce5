package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"google.golang.org/genai"
)

// GenAIConfig configures the Gemini-backed transport.
type GenAIConfig struct {
	Endpoint  string // optional base URL override
	Model     string
	APIKeyEnv string // environment variable holding the credential
}

// GenAITransport sends prompts through the Google GenAI SDK.
type GenAITransport struct {
	client *genai.Client
	model  string
}

// NewGenAITransport creates a transport. The API key is read from the
// environment variable named by cfg.APIKeyEnv.
func NewGenAITransport(ctx context.Context, cfg GenAIConfig) (*GenAITransport, error) {
	if cfg.APIKeyEnv == "" {
		return nil, fmt.Errorf("oracle api key environment variable is not configured")
	}
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is empty", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Endpoint != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.Endpoint
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAITransport{client: client, model: cfg.Model}, nil
}

// CompleteWithSystem asks the model for a JSON answer.
func (t *GenAITransport) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := t.client.Models.GenerateContent(ctx, t.model, genai.Text(userPrompt), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0),
	})
	if err != nil {
		return "", classifyGenAIError(ctx, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", newError(CategoryMalformed, nil, "empty response from %s", t.model)
	}
	return text, nil
}

// Name returns the transport name used in logs.
func (t *GenAITransport) Name() string {
	return fmt.Sprintf("genai:%s", t.model)
}

func classifyGenAIError(ctx context.Context, err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code = apiErrPtr.Code
	}
	switch {
	case code == http.StatusTooManyRequests:
		return newError(CategoryRateLimited, err, "rate limit exceeded (429)")
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return newError(CategoryTimeout, err, "provider timed out (%d)", code)
	case code >= 400:
		return newError(CategoryUnavailable, err, "provider rejected the request (%d)", code)
	}
	return classifyTransport(ctx, err)
}
