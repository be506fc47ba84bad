package planner

import (
	"regexp"
	"strings"
)

const (
	redactedMarker = "[REDACTED]"
	redactedKey    = "[REDACTED_API_KEY]"
)

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rm\s+-rf`),
	regexp.MustCompile(`(?i)\bcurl\s+`),
	regexp.MustCompile(`(?i)\bwget\s+`),
	regexp.MustCompile(`(?i)\bbash\s+`),
	regexp.MustCompile(`(?i)\bsh\s+`),
	regexp.MustCompile(`(?i)exec\(`),
	regexp.MustCompile(`(?i)eval\(`),
	regexp.MustCompile(`(?i)os\.system`),
	regexp.MustCompile(`(?i)subprocess\.`),
}

var apiKeyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	regexp.MustCompile(`sk-[0-9A-Za-z]{48}`),
}

// maxSanitizePasses bounds the fixed-point loop in Sanitize.
const maxSanitizePasses = 8

// Sanitize redacts shell and exec-like fragments and API-key-shaped tokens.
// Passes repeat until the text stops changing, so sanitizing sanitized text
// is a no-op.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	for i := 0; i < maxSanitizePasses; i++ {
		next := sanitizePass(text)
		if next == text {
			break
		}
		text = next
	}
	return strings.TrimSpace(text)
}

func sanitizePass(text string) string {
	for _, re := range dangerousPatterns {
		text = re.ReplaceAllLiteralString(text, redactedMarker)
	}
	for _, re := range apiKeyPatterns {
		text = re.ReplaceAllLiteralString(text, redactedKey)
	}
	return text
}
