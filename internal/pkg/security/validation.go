package security

import (
	"fmt"
	"unicode/utf8"
)

// Validation limits.
const (
	// MaxQueryLength bounds the text sent to the search provider.
	MaxQueryLength = 2048

	// MaxMessages bounds the transcript accepted by the HTTP API.
	MaxMessages = 1000

	// Result count limits. Google Programmable Search returns at most 10
	// results per call.
	MinResultCount = 1
	MaxResultCount = 10

	// MaxRequestSize bounds request bodies.
	MaxRequestSize = 4 * 1024 * 1024 // 4MB
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field      string
	Value      interface{}
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// ValidateQuery validates a search query string.
func ValidateQuery(query string) error {
	if query == "" {
		return &ValidationError{
			Field:      "query",
			Constraint: "required",
		}
	}

	if !utf8.ValidString(query) {
		return &ValidationError{
			Field:      "query",
			Constraint: "must be valid UTF-8",
		}
	}

	if length := utf8.RuneCountInString(query); length > MaxQueryLength {
		return &ValidationError{
			Field:      "query",
			Value:      length,
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxQueryLength),
		}
	}

	return nil
}

// ValidateResultCount validates the number of results to fetch.
func ValidateResultCount(n int) error {
	if n < MinResultCount || n > MaxResultCount {
		return &ValidationError{
			Field:      "result_count",
			Value:      n,
			Constraint: fmt.Sprintf("must be between %d and %d", MinResultCount, MaxResultCount),
		}
	}
	return nil
}

// ValidateMessageCount validates the size of a transcript.
func ValidateMessageCount(n int) error {
	if n > MaxMessages {
		return &ValidationError{
			Field:      "messages",
			Value:      n,
			Constraint: fmt.Sprintf("at most %d messages", MaxMessages),
		}
	}
	return nil
}
