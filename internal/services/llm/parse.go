package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ternarybob/aestimo/internal/models"
)

// ErrInvalidOutput marks a response whose action block failed validation.
// The caller retries the whole call once against the fallback model.
var ErrInvalidOutput = errors.New("llm output missing a usable action rating")

// fencePattern strips a whole-response markdown code fence.
var fencePattern = regexp.MustCompile(`(?s)^\s*` + "```" + `(?:json|JSON)?\s*\n?(.*?)\n?\s*` + "```" + `\s*$`)

// cleanResponse removes markdown fences and surrounding whitespace.
func cleanResponse(s string) string {
	s = strings.TrimSpace(s)

	if matches := fencePattern.FindStringSubmatch(s); len(matches) > 1 {
		s = matches[1]
	}

	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	return strings.TrimSpace(s)
}

// extractJSONObject returns the substring spanning the first '{' to the
// last '}', recovering objects wrapped in prose.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

// validateResult enforces the action contract: a rating must be present
// and must not be the N/A escape hatch the prompt forbids.
func validateResult(result *models.AnalysisResult) error {
	rating := strings.TrimSpace(result.Action.Rating)
	if rating == "" || strings.EqualFold(rating, "N/A") {
		return ErrInvalidOutput
	}
	return nil
}

// parseResult decodes one model response with three fallbacks: unmarshal
// of the cleaned text, the first-to-last brace substring, then a JSON
// repair pass through the secondary model.
func (s *Service) parseResult(ctx context.Context, text string) (*models.AnalysisResult, error) {
	cleaned := cleanResponse(text)

	result := new(models.AnalysisResult)
	if err := json.Unmarshal([]byte(cleaned), result); err == nil {
		return result, validateResult(result)
	}

	if sub, ok := extractJSONObject(cleaned); ok {
		result = new(models.AnalysisResult)
		if err := json.Unmarshal([]byte(sub), result); err == nil {
			return result, validateResult(result)
		}
	}

	repaired, err := s.repairJSON(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("json repair failed: %w", err)
	}

	result = new(models.AnalysisResult)
	if err := json.Unmarshal([]byte(repaired), result); err != nil {
		return nil, fmt.Errorf("repaired output is still not valid JSON: %w", err)
	}
	return result, validateResult(result)
}

// repairJSON asks the repair model to fix malformed output. The repair
// call is metered like any other invocation.
func (s *Service) repairJSON(ctx context.Context, broken string) (string, error) {
	model := s.config.RepairModel
	if model == "" {
		model = s.config.Gemini.Model
	}
	if model == "" {
		return "", fmt.Errorf("no repair model configured")
	}

	s.logger.Debug().
		Str("model", model).
		Int("broken_chars", len(broken)).
		Msg("Repairing malformed LLM output")

	resp, _, err := s.invoke(ctx, generateRequest{
		model:     model,
		system:    repairPrompt,
		user:      broken,
		jsonMode:  true,
		maxTokens: s.config.MaxCompletionTokens,
	})
	if err != nil {
		return "", err
	}
	return cleanResponse(resp.text), nil
}
