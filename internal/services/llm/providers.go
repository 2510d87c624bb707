package llm

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/ternarybob/aestimo/internal/common"
)

// Provider names used in logs and metric labels.
const (
	providerOpenAI    = "openai"
	providerGemini    = "gemini"
	providerAnthropic = "anthropic"
)

// providerFor maps a model name to its provider. The OpenAI path is the
// default so unknown model names fail loudly against the primary vendor.
func providerFor(model string) string {
	model = strings.ToLower(model)
	switch {
	case strings.HasPrefix(model, "claude"):
		return providerAnthropic
	case strings.HasPrefix(model, "gemini"):
		return providerGemini
	default:
		return providerOpenAI
	}
}

// generateRequest is one provider-agnostic generation call.
type generateRequest struct {
	model     string
	system    string
	user      string
	seed      int64 // sent only on the OpenAI path when > 0
	jsonMode  bool
	schema    *genai.Schema // structured output, Gemini path only
	maxTokens int
}

// generateResponse carries the raw text plus the vendor token counts.
type generateResponse struct {
	text             string
	promptTokens     int
	completionTokens int
}

// openAI returns the OpenAI client, resolving the key on first use.
func (s *Service) openAI(ctx context.Context) (*openai.Client, error) {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	if s.openaiClient != nil {
		return s.openaiClient, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, s.keys, "openai_api_key", s.config.OpenAI.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve OpenAI API key: %w", err)
	}

	s.openaiClient = openai.NewClient(apiKey)
	return s.openaiClient, nil
}

// gemini returns the Gemini client, resolving the key on first use.
func (s *Service) gemini(ctx context.Context) (*genai.Client, error) {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	if s.geminiClient != nil {
		return s.geminiClient, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, s.keys, "gemini_api_key", s.config.Gemini.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve Gemini API key: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	s.geminiClient = client
	return s.geminiClient, nil
}

// claude returns the Anthropic client, resolving the key on first use.
// The client is a value type, so a resolved key marks it initialized.
func (s *Service) claude(ctx context.Context) (anthropic.Client, error) {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	if s.claudeKey != "" {
		return s.claudeClient, nil
	}

	apiKey, err := common.ResolveAPIKey(ctx, s.keys, "anthropic_api_key", s.config.Anthropic.APIKey)
	if err != nil {
		return anthropic.Client{}, fmt.Errorf("failed to resolve Anthropic API key: %w", err)
	}

	s.claudeClient = anthropic.NewClient(option.WithAPIKey(apiKey))
	s.claudeKey = apiKey
	return s.claudeClient, nil
}

// generateOpenAI runs one chat completion against the primary provider.
func (s *Service) generateOpenAI(ctx context.Context, req generateRequest) (*generateResponse, error) {
	client, err := s.openAI(ctx)
	if err != nil {
		return nil, err
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: req.system},
		{Role: openai.ChatMessageRoleUser, Content: req.user},
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.model,
		Messages: messages,
		// The client drops a zero temperature from the request body;
		// the smallest positive float still serializes as 0.
		Temperature: math.SmallestNonzeroFloat32,
	}
	if req.maxTokens > 0 {
		chatReq.MaxTokens = req.maxTokens
	}
	if req.seed > 0 {
		seed := int(req.seed)
		chatReq.Seed = &seed
	}
	if req.jsonMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai API error: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("empty response from OpenAI API")
	}

	return &generateResponse{
		text:             resp.Choices[0].Message.Content,
		promptTokens:     resp.Usage.PromptTokens,
		completionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// generateClaude runs one message call against the fallback provider.
func (s *Service) generateClaude(ctx context.Context, req generateRequest) (*generateResponse, error) {
	client, err := s.claude(ctx)
	if err != nil {
		return nil, err
	}

	maxTokens := req.maxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.user)),
		},
	}
	if req.system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.system},
		}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude API error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("empty response from Claude API")
	}

	return &generateResponse{
		text:             text.String(),
		promptTokens:     int(resp.Usage.InputTokens),
		completionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// generateGemini runs one call against the secondary model with the
// rate-limit retry loop. Gemini quotas reset on a ~60s window, so the
// backoff honors the API-suggested delay when present.
func (s *Service) generateGemini(ctx context.Context, req generateRequest) (*generateResponse, error) {
	client, err := s.gemini(ctx)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0)),
	}
	if req.system != "" {
		config.SystemInstruction = genai.NewContentFromText(req.system, genai.RoleUser)
	}
	if req.maxTokens > 0 {
		config.MaxOutputTokens = int32(req.maxTokens)
	}
	if req.schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = req.schema
	} else if req.jsonMode {
		config.ResponseMIMEType = "application/json"
	}

	contents := genai.Text(req.user)

	var resp *genai.GenerateContentResponse
	var apiErr error
	retryConfig := NewDefaultRetryConfig()

	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		resp, apiErr = client.Models.GenerateContent(ctx, req.model, contents, config)
		if apiErr == nil {
			break
		}
		if attempt == retryConfig.MaxRetries {
			break
		}

		var backoff time.Duration
		if IsRateLimitError(apiErr) {
			apiDelay := ExtractRetryDelay(apiErr)
			backoff = retryConfig.CalculateBackoff(attempt, apiDelay)
		} else {
			backoff = time.Duration(attempt+1) * 2 * time.Second
		}

		s.logger.Warn().
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(apiErr).
			Msg("Retrying Gemini API call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if apiErr != nil {
		return nil, fmt.Errorf("gemini API call failed after %d retries: %w", retryConfig.MaxRetries, apiErr)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from Gemini API")
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty text in Gemini response")
	}

	out := &generateResponse{text: text}
	if resp.UsageMetadata != nil {
		out.promptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.completionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
