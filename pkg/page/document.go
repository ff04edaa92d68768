package page

import (
	"context"
	"errors"
)

var (
	// ErrNoSuchElement is returned by a Document when a locator matches nothing.
	ErrNoSuchElement = errors.New("no such element")
	// ErrUnregisteredElement is returned when resolving a name that was never registered.
	ErrUnregisteredElement = errors.New("element not registered")
	// ErrNotFound is returned when neither the primary locator nor healing found the element.
	ErrNotFound = errors.New("element not found")
)

// Document is a live page in a browser session.
type Document interface {
	// Query returns the first element matching the locator, or
	// ErrNoSuchElement.
	Query(ctx context.Context, loc Locator) (Element, error)
	// QueryAll returns every element of a control family in document order.
	QueryAll(ctx context.Context, control Control) ([]Element, error)
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	WaitForLoad(ctx context.Context) error
	// Screenshot returns a PNG of the viewport.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Element is a single node in a Document.
type Element interface {
	Text(ctx context.Context) (string, error)
	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	IsVisible(ctx context.Context) (bool, error)
	Click(ctx context.Context) error
	// Fill clears the element and types text into it.
	Fill(ctx context.Context, text string) error
}
