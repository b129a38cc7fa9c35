package agent

import (
	"log/slog"
	"regexp"
	"strings"
)

// SanitizeAssistantContent strips model artifacts from text before it is
// sent to the family: reasoning tags, <final> wrappers, tool calls the
// model wrote out as text, and repeated paragraphs.
func SanitizeAssistantContent(content string) string {
	if content == "" {
		return content
	}
	original := content

	content = stripThinkingTags(content)
	content = finalTagPattern.ReplaceAllString(content, "")
	content = stripDowngradedToolCallText(content)
	content = collapseConsecutiveDuplicateBlocks(content)
	content = strings.TrimSpace(content)

	if content != strings.TrimSpace(original) {
		slog.Debug("sanitized assistant content", "original_len", len(original), "cleaned_len", len(content))
	}
	return content
}

// Go regexp has no backreferences, hence one pattern per tag.
var thinkingTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<thought>.*?</thought>`),
}

func stripThinkingTags(content string) string {
	lower := strings.ToLower(content)
	if !strings.Contains(lower, "<think") && !strings.Contains(lower, "<thought") {
		return content
	}
	for _, pat := range thinkingTagPatterns {
		content = pat.ReplaceAllString(content, "")
	}
	return strings.TrimSpace(content)
}

var finalTagPattern = regexp.MustCompile(`(?i)<\s*/?\s*final\s*>`)

// stripDowngradedToolCallText drops "[Tool Call: ...]" blocks and the JSON
// lines that follow them.
func stripDowngradedToolCallText(content string) string {
	if !strings.Contains(content, "[Tool Call:") && !strings.Contains(content, "[Tool Result") {
		return content
	}

	var result []string
	skipping := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "[Tool Call:") || strings.HasPrefix(trimmed, "[Tool Result") {
			skipping = true
			continue
		}
		if skipping {
			if trimmed == "" || strings.HasPrefix(trimmed, "Arguments:") ||
				strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "}") {
				continue
			}
			skipping = false
		}
		result = append(result, line)
	}
	return strings.TrimSpace(strings.Join(result, "\n"))
}

func collapseConsecutiveDuplicateBlocks(content string) string {
	blocks := strings.Split(content, "\n\n")
	if len(blocks) <= 1 {
		return content
	}
	var result []string
	for _, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}
		if len(result) > 0 && trimmed == strings.TrimSpace(result[len(result)-1]) {
			continue
		}
		result = append(result, block)
	}
	return strings.Join(result, "\n\n")
}
