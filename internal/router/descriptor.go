package router

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/madjor5/penny-pal/internal/trace"
	"github.com/madjor5/penny-pal/internal/types"
)

// ErrInvalidQuery marks a descriptor the router refused at its boundary.
// Descriptors come from an LLM parser, so they are checked before anything
// downstream runs on them.
var ErrInvalidQuery = errors.New("invalid query")

// Question shapes that name the intent outright. Whatever the parser made of
// these, "when did I buy X" is a latest-product lookup.
var latestPurchasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwhen did i (?:last )?buy (.+?)[?.!]*$`),
	regexp.MustCompile(`(?i)\bwhat was my last purchase of (.+?)[?.!]*$`),
}

// applyPhraseOverrides rewrites the descriptor when the raw query matches one
// of the hard-coded question shapes, forcing a latest-product search. The
// parser's term is kept when it extracted one; the captured phrase fills in
// only when there is no usable term.
func applyPhraseOverrides(desc types.QueryDescriptor, tr *trace.Trace) types.QueryDescriptor {
	text := strings.TrimSpace(desc.Query)
	fromTerm := false
	if text == "" {
		text = strings.TrimSpace(desc.Term)
		fromTerm = true
	}
	if text == "" {
		return desc
	}

	for _, pattern := range latestPurchasePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		desc.SearchType = types.SearchTypeProduct
		desc.IsLatest = true
		if captured := strings.TrimSpace(m[1]); captured != "" && (fromTerm || strings.TrimSpace(desc.Term) == "") {
			desc.Term = captured
		}
		tr.Add("route", "phrase override: latest purchase of %q", desc.Term)
		break
	}
	return desc
}

// validateDescriptor rejects descriptors with no usable term or a search type
// outside the two the router knows how to dispatch
func validateDescriptor(desc types.QueryDescriptor) error {
	if strings.TrimSpace(desc.Term) == "" {
		return fmt.Errorf("%w: empty search term", ErrInvalidQuery)
	}
	switch desc.SearchType {
	case types.SearchTypeProduct, types.SearchTypeStore:
		return nil
	default:
		return fmt.Errorf("%w: unknown search type %q", ErrInvalidQuery, desc.SearchType)
	}
}
