// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package search

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	tserr "github.com/trendscout-dev/trendscout/pkg/errors"
)

// Query limits. Queries are natural-language questions; anything past these
// bounds is abuse or an integration bug, not a search.
const (
	MaxQueryLength = 1000
	MaxQueryWords  = 100

	DefaultTopK = 5
	MinTopK     = 1
	MaxTopK     = 20
)

// Request is a search query as it arrives from the API.
type Request struct {
	Query string `json:"query"`

	// TopK is the number of results to return. Zero takes DefaultTopK.
	TopK int `json:"top_k,omitempty"`
}

// suspiciousPatterns reject queries that carry code or SQL rather than
// language. The screen runs on the raw input, before sanitization strips
// the telltale characters.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[^>]*>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)exec\s*\(`),
	regexp.MustCompile(`(?i)drop\s+table`),
	regexp.MustCompile(`(?i)delete\s+from`),
	regexp.MustCompile(`(?i)insert\s+into`),
	regexp.MustCompile(`(?i)update\s+.*set`),
}

// promptInjectionPatterns flag attempts to steer the synthesis LLM. Matches
// are logged, not rejected: legitimate queries can trip them ("forget
// previous fashion trends").
var promptInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(all\s+)?(previous|prior|above)`),
	regexp.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior|above)`),
	regexp.MustCompile(`(?i)you\s+are\s+now`),
	regexp.MustCompile(`(?i)new\s+instructions`),
	regexp.MustCompile(`(?i)system\s*:`),
	regexp.MustCompile(`(?i)assistant\s*:`),
	regexp.MustCompile(`(?i)###\s*instruction`),
}

// sanitizeReplacer strips characters that have no place in a natural
// language query. Most punctuation stays so questions read as written.
var sanitizeReplacer = strings.NewReplacer(
	"<", "", ">", "", "{", "", "}", "", "[", "", "]", "",
	"\\", "", "|", "", "`", "", "~", "", "^", "",
)

var whitespaceRuns = regexp.MustCompile(`\s+`)

// normalizeRequest validates req and returns the sanitized copy the rest of
// the pipeline runs on. Invalid requests fail with a coded 400-mapped error
// before any dependency is touched.
func normalizeRequest(req Request) (Request, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.TopK == 0 {
		req.TopK = DefaultTopK
	}

	if err := req.validate(); err != nil {
		return Request{}, tserr.Wrap(err, tserr.CodeSearchQueryInvalid, "invalid search request")
	}

	if pattern, ok := detectPromptInjection(req.Query); ok {
		slog.Warn("possible prompt injection in query", "pattern", pattern)
	}

	req.Query = sanitize(req.Query)
	if req.Query == "" {
		return Request{}, tserr.New(tserr.CodeSearchQueryInvalid, "query is empty after sanitization")
	}
	return req, nil
}

func (r Request) validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Query,
			validation.Required.Error("query is required"),
			validation.RuneLength(1, MaxQueryLength),
			validation.By(maxWords(MaxQueryWords)),
			validation.By(screenSuspicious),
		),
		validation.Field(&r.TopK,
			validation.Min(MinTopK),
			validation.Max(MaxTopK),
		),
	)
}

// sanitize normalizes a validated query: dangerous characters drop out and
// whitespace runs collapse to single spaces.
func sanitize(query string) string {
	query = sanitizeReplacer.Replace(query)
	query = whitespaceRuns.ReplaceAllString(query, " ")
	return strings.TrimSpace(query)
}

func maxWords(limit int) validation.RuleFunc {
	return func(value any) error {
		query, _ := value.(string)
		if n := len(strings.Fields(query)); n > limit {
			return validation.NewError("validation_word_count",
				fmt.Sprintf("must contain at most %d words, got %d", limit, n))
		}
		return nil
	}
}

func screenSuspicious(value any) error {
	query, _ := value.(string)
	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(query) {
			return validation.NewError("validation_suspicious_input",
				"contains suspicious patterns; rephrase the search without code or special characters")
		}
	}
	return nil
}

func detectPromptInjection(query string) (string, bool) {
	for _, pattern := range promptInjectionPatterns {
		if pattern.MatchString(query) {
			return pattern.String(), true
		}
	}
	return "", false
}
