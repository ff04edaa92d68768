package page

import (
	"fmt"
	"strings"
)

// Strategy names how a primary locator addresses an element.
type Strategy string

const (
	ByID          Strategy = "id"
	ByCSS         Strategy = "css"
	ByXPath       Strategy = "xpath"
	ByName        Strategy = "name"
	ByClassName   Strategy = "class_name"
	ByTagName     Strategy = "tag_name"
	ByLinkText    Strategy = "link_text"
	ByText        Strategy = "text"
	ByPlaceholder Strategy = "placeholder"
	ByTestID      Strategy = "test_id"
)

var strategies = []Strategy{
	ByID, ByCSS, ByXPath, ByName, ByClassName, ByTagName,
	ByLinkText, ByText, ByPlaceholder, ByTestID,
}

var strategyAliases = map[string]Strategy{
	"css_selector":      ByCSS,
	"class":             ByClassName,
	"tag":               ByTagName,
	"partial_link_text": ByLinkText,
	"data_testid":       ByTestID,
	"testid":            ByTestID,
}

// ParseStrategy accepts a strategy name in any case, with spaces or dashes
// in place of underscores.
func ParseStrategy(s string) (Strategy, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	for _, st := range strategies {
		if string(st) == key {
			return st, nil
		}
	}
	if st, ok := strategyAliases[key]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown locator strategy %q", s)
}

// Locator is a (strategy, value) pair.
type Locator struct {
	Strategy Strategy `yaml:"strategy" json:"strategy"`
	Value    string   `yaml:"value" json:"value"`
}

// By builds a locator.
func By(strategy Strategy, value string) *Locator {
	return &Locator{Strategy: strategy, Value: value}
}

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.Strategy, l.Value)
}

// SelectorKind tells a driver which query language an expression uses.
type SelectorKind int

const (
	KindCSS SelectorKind = iota
	KindXPath
)

// Selector translates the locator into a CSS or XPath expression.
func (l Locator) Selector() (SelectorKind, string, error) {
	if l.Value == "" {
		return 0, "", fmt.Errorf("empty %s locator", l.Strategy)
	}
	switch l.Strategy {
	case ByID:
		return KindCSS, attrSelector("id", l.Value), nil
	case ByCSS:
		return KindCSS, l.Value, nil
	case ByXPath:
		return KindXPath, l.Value, nil
	case ByName:
		return KindCSS, attrSelector("name", l.Value), nil
	case ByClassName:
		return KindCSS, fmt.Sprintf("[class~=%s]", cssString(l.Value)), nil
	case ByTagName:
		return KindCSS, l.Value, nil
	case ByPlaceholder:
		return KindCSS, attrSelector("placeholder", l.Value), nil
	case ByTestID:
		return KindCSS, attrSelector("data-testid", l.Value), nil
	case ByLinkText:
		return KindXPath, fmt.Sprintf("//a[contains(normalize-space(.), %s)]", xpathString(l.Value)), nil
	case ByText:
		return KindXPath, fmt.Sprintf("//*[contains(normalize-space(text()), %s)]", xpathString(l.Value)), nil
	default:
		return 0, "", fmt.Errorf("unknown locator strategy %q", l.Strategy)
	}
}

func attrSelector(attr, value string) string {
	return fmt.Sprintf("[%s=%s]", attr, cssString(value))
}

func cssString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// xpathString quotes s for XPath 1.0, which has no escape sequences.
func xpathString(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		quoted = append(quoted, `"`+p+`"`)
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// Control is a family of interactive elements scanned during healing.
type Control int

const (
	ControlButton Control = iota
	ControlInput
)

func (c Control) String() string {
	switch c {
	case ControlButton:
		return "button"
	case ControlInput:
		return "input"
	default:
		return "unknown"
	}
}

// CSS returns the selector matching every element of the control family.
func (c Control) CSS() string {
	switch c {
	case ControlButton:
		return `button, input[type="button"], input[type="submit"], [role="button"]`
	case ControlInput:
		return `input:not([type="button"]):not([type="submit"]):not([type="hidden"]), textarea`
	default:
		return ""
	}
}
