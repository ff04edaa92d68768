package page

import (
	"context"
	"fmt"
	"strings"
)

// Evidence describes how a matcher reached its verdict.
type Evidence struct {
	Strategy   string
	Token      string
	Candidates int
	Detail     string
}

// Matcher locates an element from its descriptor when the primary locator
// fails. A nil element with a nil error means no candidate matched.
type Matcher interface {
	Match(ctx context.Context, doc Document, d Descriptor) (Element, Evidence, error)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(ctx context.Context, doc Document, d Descriptor) (Element, Evidence, error)

func (f MatcherFunc) Match(ctx context.Context, doc Document, d Descriptor) (Element, Evidence, error) {
	return f(ctx, doc, d)
}

// KeywordMatcher compares description words with button labels and input
// placeholders.
type KeywordMatcher struct{}

// Match scans buttons when the description mentions "button", otherwise
// inputs when it mentions "input" or "field". The first control whose
// label or placeholder contains any description token wins.
func (KeywordMatcher) Match(ctx context.Context, doc Document, d Descriptor) (Element, Evidence, error) {
	desc := strings.ToLower(d.Description)
	tokens := Tokenize(desc)

	var (
		control Control
		read    func(context.Context, Element) (string, error)
		ev      Evidence
	)
	switch {
	case strings.Contains(desc, "button"):
		control, read = ControlButton, elementText
		ev.Strategy = "button_text"
	case strings.Contains(desc, "input"), strings.Contains(desc, "field"):
		control, read = ControlInput, placeholderText
		ev.Strategy = "input_placeholder"
	default:
		ev.Detail = "description names no known control"
		return nil, ev, nil
	}

	candidates, err := doc.QueryAll(ctx, control)
	if err != nil {
		return nil, ev, fmt.Errorf("failed to list %s controls: %w", control, err)
	}
	ev.Candidates = len(candidates)

	for _, el := range candidates {
		label, err := read(ctx, el)
		if err != nil {
			continue
		}
		label = strings.ToLower(label)
		for _, tok := range tokens {
			if strings.Contains(label, tok) {
				ev.Token = tok
				ev.Detail = fmt.Sprintf("%s %q contains %q", control, label, tok)
				return el, ev, nil
			}
		}
	}
	ev.Detail = fmt.Sprintf("no %s among %d matched %v", control, len(candidates), tokens)
	return nil, ev, nil
}

// Tokenize lowercases s and returns its whitespace-separated words longer
// than two characters.
func Tokenize(s string) []string {
	var tokens []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if len(w) > 2 {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

func elementText(ctx context.Context, el Element) (string, error) {
	return el.Text(ctx)
}

func placeholderText(ctx context.Context, el Element) (string, error) {
	v, _, err := el.Attribute(ctx, "placeholder")
	return v, err
}
