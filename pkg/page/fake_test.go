package page

import (
	"context"
	"errors"
	"sync"

	"github.com/kamilpajak/smarttest/internal/config"
)

type fakeElement struct {
	text     string
	attrs    map[string]string
	visible  bool
	clickErr error
	fillErr  error
	attrErr  error

	clicks int
	filled string
}

func (e *fakeElement) Text(context.Context) (string, error) { return e.text, nil }

func (e *fakeElement) Attribute(_ context.Context, name string) (string, bool, error) {
	if e.attrErr != nil {
		return "", false, e.attrErr
	}
	v, ok := e.attrs[name]
	return v, ok, nil
}

func (e *fakeElement) IsVisible(context.Context) (bool, error) { return e.visible, nil }

func (e *fakeElement) Click(context.Context) error {
	if e.clickErr != nil {
		return e.clickErr
	}
	e.clicks++
	return nil
}

func (e *fakeElement) Fill(_ context.Context, text string) error {
	if e.fillErr != nil {
		return e.fillErr
	}
	e.filled = text
	return nil
}

type fakeDocument struct {
	mu       sync.Mutex
	byLoc    map[Locator]*fakeElement
	controls map[Control][]*fakeElement
	queryErr error
	listErr  error

	url        string
	title      string
	screenshot []byte

	queries  int
	listings int
}

func newFakeDocument() *fakeDocument {
	return &fakeDocument{
		byLoc:    map[Locator]*fakeElement{},
		controls: map[Control][]*fakeElement{},
	}
}

func (d *fakeDocument) Query(_ context.Context, loc Locator) (Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries++
	if d.queryErr != nil {
		return nil, d.queryErr
	}
	if el, ok := d.byLoc[loc]; ok {
		return el, nil
	}
	return nil, ErrNoSuchElement
}

func (d *fakeDocument) QueryAll(_ context.Context, c Control) ([]Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listings++
	if d.listErr != nil {
		return nil, d.listErr
	}
	out := make([]Element, 0, len(d.controls[c]))
	for _, el := range d.controls[c] {
		out = append(out, el)
	}
	return out, nil
}

func (d *fakeDocument) Navigate(_ context.Context, url string) error {
	d.url = url
	return nil
}

func (d *fakeDocument) Title(context.Context) (string, error) { return d.title, nil }

func (d *fakeDocument) WaitForLoad(ctx context.Context) error { return ctx.Err() }

func (d *fakeDocument) Screenshot(context.Context) ([]byte, error) {
	if d.screenshot == nil {
		return nil, errors.New("no screenshot")
	}
	return d.screenshot, nil
}

type featureSet map[config.Feature]bool

func (f featureSet) IsFeatureEnabled(feature config.Feature) bool { return f[feature] }

type countingMatcher struct {
	inner Matcher
	calls int
}

func (m *countingMatcher) Match(ctx context.Context, doc Document, d Descriptor) (Element, Evidence, error) {
	m.calls++
	return m.inner.Match(ctx, doc, d)
}

type memorySink struct {
	entries []HealingEntry
}

func (s *memorySink) Record(e HealingEntry) error {
	s.entries = append(s.entries, e)
	return nil
}
