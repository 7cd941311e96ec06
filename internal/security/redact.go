// Package security keeps credentials out of logs and error messages.
package security

import (
	"regexp"
	"strings"
)

// sensitivePatterns match credential assignments in free text, such as the
// apikey query parameter of a provider URL quoted by net/http errors.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)((?:api[_-]?key|api[_-]?secret|secret[_-]?key|access[_-]?token|auth[_-]?token|password)["']?\s*[=:]\s*["']?)([^\s&"',;]+)`),
}

// Redact masks every credential assignment found in input.
func Redact(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			groups := pattern.FindStringSubmatch(match)
			return groups[1] + MaskCredential(groups[2])
		})
	}
	return result
}

// RedactError returns err's message with credentials masked, or "" for nil.
func RedactError(err error) string {
	if err == nil {
		return ""
	}
	return Redact(err.Error())
}

// MaskCredential masks a credential value for logging.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// ContainsSensitiveData checks if a string contains sensitive data patterns.
func ContainsSensitiveData(input string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}
