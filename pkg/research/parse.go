package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	errNoJSON      = errors.New("no JSON found in model output")
	errNoQuestions = errors.New("empty questions list")
)

// extractJSON strips Markdown code fences and surrounding prose from model output.
func extractJSON(content string) (string, error) {
	content = strings.TrimSpace(content)
	if i := strings.Index(content, "```"); i >= 0 {
		rest := content[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		content = strings.TrimSpace(rest)
	}

	start := strings.IndexAny(content, "[{")
	if start < 0 {
		return "", errNoJSON
	}
	closer := "]"
	if content[start] == '{' {
		closer = "}"
	}
	end := strings.LastIndex(content, closer)
	if end < start {
		return "", errNoJSON
	}
	return content[start : end+1], nil
}

// parseQuestions accepts a JSON array of strings or an object with a
// "questions" (or "queries") array.
func parseQuestions(content string) ([]string, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, err
	}

	var questions []string
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &questions); err != nil {
			return nil, fmt.Errorf("json parse error: %w (content: %s)", err, content)
		}
	} else {
		var obj struct {
			Questions []string `json:"questions"`
			Queries   []string `json:"queries"`
		}
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return nil, fmt.Errorf("json parse error: %w (content: %s)", err, content)
		}
		questions = obj.Questions
		if len(questions) == 0 {
			questions = obj.Queries
		}
	}

	cleaned := make([]string, 0, len(questions))
	seen := make(map[string]bool)
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		cleaned = append(cleaned, q)
	}
	if len(cleaned) == 0 {
		return nil, errNoQuestions
	}
	return cleaned, nil
}
