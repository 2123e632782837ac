package retry

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Class is the failure class of an error.
type Class int

const (
	// ClassHardFailure is anything not known to be throttling.
	ClassHardFailure Class = iota
	// ClassRateLimited is a transient throttling response.
	ClassRateLimited
)

func (c Class) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	default:
		return "hard_failure"
	}
}

// DefaultRetryableStatusCodes are HTTP codes treated as throttling.
var DefaultRetryableStatusCodes = []int{429, 502, 503, 504}

var rateLimitKeywords = []string{
	"rate limit",
	"rate_limit",
	"ratelimit",
	"too many requests",
	"overloaded",
}

// Rule is one row of the classification table.
type Rule struct {
	Name  string
	Match func(err error, msg string) bool
	Class Class
}

// Classifier evaluates its rules top to bottom; the first match wins and
// unmatched errors are hard failures.
type Classifier struct {
	rules []Rule
	// output holds the agent CLI's own throttling signatures. Only these are
	// trusted against process output, which also carries the agent's work.
	output []*regexp.Regexp
}

// NewClassifier builds the default rule table. A nil or empty code list
// uses DefaultRetryableStatusCodes.
func NewClassifier(statusCodes []int) *Classifier {
	if len(statusCodes) == 0 {
		statusCodes = DefaultRetryableStatusCodes
	}

	codes := make([]string, len(statusCodes))
	for i, c := range statusCodes {
		codes[i] = strconv.Itoa(c)
	}
	codeList := strings.Join(codes, "|")
	codePattern := regexp.MustCompile(`\b(` + codeList + `)\b`)

	output := []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:error:\s*)?API Error:?\s*(?:` + codeList + `)\b`),
		regexp.MustCompile(`"type"\s*:\s*"(?:rate_limit_error|overloaded_error)"`),
		regexp.MustCompile(`(?i)^(?:error:\s*)?(?:rate limit (?:exceeded|reached)|too many requests)\b`),
	}

	return &Classifier{output: output, rules: []Rule{
		{
			Name:  "typed",
			Match: func(err error, _ string) bool { return errors.Is(err, ErrRateLimited) },
			Class: ClassRateLimited,
		},
		{
			Name: "cancelled",
			Match: func(err error, _ string) bool {
				return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
			},
			Class: ClassHardFailure,
		},
		{
			Name:  "status-code",
			Match: func(_ error, msg string) bool { return codePattern.MatchString(msg) },
			Class: ClassRateLimited,
		},
		{
			Name: "keyword",
			Match: func(_ error, msg string) bool {
				lower := strings.ToLower(msg)
				for _, kw := range rateLimitKeywords {
					if strings.Contains(lower, kw) {
						return true
					}
				}
				return false
			},
			Class: ClassRateLimited,
		},
	}}
}

// Classify returns the class of err. A nil error is not a failure and
// classifies as hard failure only for completeness.
func (c *Classifier) Classify(err error) Class {
	if err == nil {
		return ClassHardFailure
	}
	return c.ClassifyText(err, err.Error())
}

// ClassifyText classifies using msg instead of err.Error(). msg must be an
// error message; use ClassifyOutput for free-form process output.
func (c *Classifier) ClassifyText(err error, msg string) Class {
	for _, r := range c.rules {
		if r.Match(err, msg) {
			return r.Class
		}
	}
	return ClassHardFailure
}

// ClassifyOutput classifies the captured output of a failed agent process.
// Only the final non-empty line is inspected, and only against the agent
// CLI's explicit throttling signatures.
func (c *Classifier) ClassifyOutput(output string) Class {
	line := FinalLine(output)
	if line == "" {
		return ClassHardFailure
	}
	for _, re := range c.output {
		if re.MatchString(line) {
			return ClassRateLimited
		}
	}
	return ClassHardFailure
}

// FinalLine returns the last non-empty line of s, trimmed.
func FinalLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.LastIndexByte(s, '\n'); idx != -1 {
		s = s[idx+1:]
	}
	return strings.TrimSpace(s)
}

var defaultClassifier = NewClassifier(nil)

// Classify uses the default rule table.
func Classify(err error) Class {
	return defaultClassifier.Classify(err)
}
