// Package sanitize strips markup from user-supplied free text before it is
// stored. Album and photo descriptions are plain text; any HTML a client
// sends is removed with a strict bluemonday policy so stored values are safe
// to render anywhere and keyword search matches what users actually see.
package sanitize

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// policy is the singleton strict policy. Initialized once via sync.Once.
var (
	policy     *bluemonday.Policy
	policyOnce sync.Once
)

func getPolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Text removes all HTML elements from input and returns the remaining text
// with entities decoded and surrounding whitespace trimmed.
func Text(input string) string {
	if input == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(getPolicy().Sanitize(input)))
}

// TextPtr applies Text to an optional value. A value that becomes empty
// after sanitizing is returned as nil.
func TextPtr(input *string) *string {
	if input == nil {
		return nil
	}
	out := Text(*input)
	if out == "" {
		return nil
	}
	return &out
}
