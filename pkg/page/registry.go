// Package page provides the element registry used by page objects: logical
// element names resolve through a primary locator first and fall back to a
// heuristic matcher when self-healing is enabled.
package page

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/kamilpajak/smarttest/pkg/models"
	"go.uber.org/zap"
)

// HealingEntry is one resolution attempt recorded against a descriptor.
type HealingEntry = models.HealingEvent

// Descriptor is the registered metadata of one logical element.
type Descriptor struct {
	Name        string
	Description string
	Primary     *Locator
	History     []HealingEntry
}

// Features reports whether a feature toggle is on. *config.SuiteConfig
// implements it.
type Features interface {
	IsFeatureEnabled(config.Feature) bool
}

// HealingSink receives every healing-history entry as it is recorded.
type HealingSink interface {
	Record(HealingEntry) error
}

// Registry maps element names to descriptors for one page.
type Registry struct {
	page     string
	doc      Document
	features Features
	matcher  Matcher
	sink     HealingSink
	logger   *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	descriptors map[string]*Descriptor
}

// Option configures a Registry.
type Option func(*Registry)

// WithFeatures sets the source of the self-healing toggle. Without it
// self-healing is on.
func WithFeatures(f Features) Option {
	return func(r *Registry) { r.features = f }
}

// WithMatcher replaces the default KeywordMatcher.
func WithMatcher(m Matcher) Option {
	return func(r *Registry) {
		if m != nil {
			r.matcher = m
		}
	}
}

// WithSink forwards healing entries to s.
func WithSink(s HealingSink) Option {
	return func(r *Registry) { r.sink = s }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPageName labels healing entries with the owning page.
func WithPageName(name string) Option {
	return func(r *Registry) { r.page = name }
}

// NewRegistry creates a registry resolving against doc.
func NewRegistry(doc Document, opts ...Option) *Registry {
	r := &Registry{
		doc:         doc,
		matcher:     KeywordMatcher{},
		logger:      zap.NewNop(),
		now:         time.Now,
		descriptors: make(map[string]*Descriptor),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("page")
	if r.page != "" {
		r.logger = r.logger.With(zap.String("page", r.page))
	}
	return r
}

// Register inserts or replaces the descriptor for name. Replacing an
// existing descriptor discards its history and logs a warning.
func (r *Registry) Register(name, description string, primary *Locator) {
	var loc *Locator
	if primary != nil {
		cp := *primary
		loc = &cp
	}

	r.mu.Lock()
	_, exists := r.descriptors[name]
	r.descriptors[name] = &Descriptor{Name: name, Description: description, Primary: loc}
	r.mu.Unlock()

	if exists {
		r.logger.Warn("element re-registered, previous descriptor replaced", zap.String("element", name))
		return
	}
	r.logger.Debug("element registered", zap.String("element", name), zap.String("description", description))
}

// Resolve returns the live element for name.
func (r *Registry) Resolve(ctx context.Context, name string) (Element, error) {
	d, ok := r.descriptor(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredElement, name)
	}

	if d.Primary != nil {
		el, err := r.doc.Query(ctx, *d.Primary)
		if err == nil {
			return el, nil
		}
		r.record(name, HealingEntry{
			Stage:    models.StagePrimary,
			Strategy: string(d.Primary.Strategy),
			Detail:   err.Error(),
		})
		r.logger.Debug("primary locator failed",
			zap.String("element", name), zap.Stringer("locator", d.Primary), zap.Error(err))
	}

	if !r.selfHealing() {
		r.logger.Warn("self-healing disabled, element not found", zap.String("element", name))
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	r.logger.Info("attempting to heal element", zap.String("element", name))
	el, ev, err := r.matcher.Match(ctx, r.doc, d)
	entry := HealingEntry{
		Stage:        models.StageHeuristic,
		Strategy:     ev.Strategy,
		Success:      err == nil && el != nil,
		MatchedToken: ev.Token,
		Detail:       ev.Detail,
	}
	if err != nil {
		entry.Detail = err.Error()
	}
	r.record(name, entry)

	if !entry.Success {
		r.logger.Warn("could not heal element", zap.String("element", name), zap.String("detail", entry.Detail))
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r.logger.Info("element healed",
		zap.String("element", name), zap.String("strategy", ev.Strategy), zap.String("token", ev.Token))
	return el, nil
}

// IsVisible reports whether name resolves to a visible element. Any failure
// yields false.
func (r *Registry) IsVisible(ctx context.Context, name string) bool {
	el, err := r.Resolve(ctx, name)
	if err != nil {
		r.logger.Debug("visibility check could not resolve element", zap.String("element", name), zap.Error(err))
		return false
	}
	visible, err := el.IsVisible(ctx)
	if err != nil {
		r.logger.Debug("visibility check failed", zap.String("element", name), zap.Error(err))
		return false
	}
	return visible
}

// Click resolves and clicks name, reporting success.
func (r *Registry) Click(ctx context.Context, name string) bool {
	el, err := r.Resolve(ctx, name)
	if err != nil {
		r.logger.Error("could not find element to click", zap.String("element", name), zap.Error(err))
		return false
	}
	if err := el.Click(ctx); err != nil {
		r.logger.Error("failed to click element", zap.String("element", name), zap.Error(err))
		return false
	}
	return true
}

// Type resolves name, clears it and types text, reporting success.
func (r *Registry) Type(ctx context.Context, name, text string) bool {
	el, err := r.Resolve(ctx, name)
	if err != nil {
		r.logger.Error("could not find element to type into", zap.String("element", name), zap.Error(err))
		return false
	}
	if err := el.Fill(ctx, text); err != nil {
		r.logger.Error("failed to type into element", zap.String("element", name), zap.Error(err))
		return false
	}
	return true
}

// History returns a copy of the healing history of name.
func (r *Registry) History(name string) []HealingEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.descriptors[name]
	if !ok {
		return nil
	}
	return append([]HealingEntry(nil), d.History...)
}

// Names returns the registered element names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Document returns the document elements resolve against.
func (r *Registry) Document() Document {
	return r.doc
}

func (r *Registry) descriptor(name string) (Descriptor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.descriptors[name]
	if !ok {
		return Descriptor{}, false
	}
	return Descriptor{Name: d.Name, Description: d.Description, Primary: d.Primary}, true
}

func (r *Registry) selfHealing() bool {
	if r.features == nil {
		return true
	}
	return r.features.IsFeatureEnabled(config.FeatureSelfHealing)
}

func (r *Registry) record(name string, entry HealingEntry) {
	entry.Time = r.now()
	entry.Page = r.page
	entry.Element = name

	r.mu.Lock()
	if d, ok := r.descriptors[name]; ok {
		d.History = append(d.History, entry)
	}
	r.mu.Unlock()

	if r.sink == nil {
		return
	}
	if err := r.sink.Record(entry); err != nil {
		r.logger.Debug("failed to write healing entry", zap.Error(err))
	}
}
