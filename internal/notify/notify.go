// Package notify sends run summaries to Slack and email.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/kamilpajak/smarttest/internal/config"
	"github.com/kamilpajak/smarttest/pkg/models"
	"go.uber.org/zap"
)

// MaxFailures caps the failures carried by a Summary.
const MaxFailures = 10

// Failure is one failed test in a notification.
type Failure struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Summary is the payload every sender renders.
type Summary struct {
	Title           string    `json:"title"`
	Total           int       `json:"total_tests"`
	Passed          int       `json:"passed_tests"`
	Failed          int       `json:"failed_tests"`
	Skipped         int       `json:"skipped_tests"`
	DurationSeconds float64   `json:"duration_seconds"`
	Failures        []Failure `json:"failures,omitempty"`
	// Omitted counts failures beyond MaxFailures.
	Omitted int `json:"omitted,omitempty"`
}

// PassRate returns the percentage of passed tests.
func (s Summary) PassRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total) * 100
}

// Status is the one-line verdict.
func (s Summary) Status() string {
	if s.Failed == 0 {
		return "All Passed"
	}
	return "Some Tests Failed"
}

// NewSummary builds the summary of an execution result.
func NewSummary(suite string, ts time.Time, exec *models.ExecutionResult) Summary {
	s := Summary{
		Title: fmt.Sprintf("SmartTest Results - %s - %s", suite, ts.Format("2006-01-02 15:04:05")),
	}
	if exec == nil {
		return s
	}
	s.DurationSeconds = exec.Duration.Seconds()
	if exec.Report == nil {
		return s
	}
	r := exec.Report
	s.Total, s.Passed, s.Failed, s.Skipped = r.TotalTests, r.PassedTests, r.FailedTests, r.SkippedTests

	failed := r.FailedTestCases()
	for i, tc := range failed {
		if i >= MaxFailures {
			s.Omitted = len(failed) - MaxFailures
			break
		}
		msg := tc.ErrorMessage
		if msg == "" {
			msg = "No error message"
		}
		s.Failures = append(s.Failures, Failure{Name: tc.Name, Message: msg})
	}
	return s
}

// Sender delivers a summary over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, s Summary, detailed bool) error
}

// Notifier fans a summary out to every enabled sender.
type Notifier struct {
	senders []Sender
	logger  *zap.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the notifier logger.
func WithLogger(l *zap.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l.Named("notify")
		}
	}
}

// WithSender adds a sender regardless of configuration.
func WithSender(s Sender) Option {
	return func(n *Notifier) { n.senders = append(n.senders, s) }
}

// New creates a Notifier with a sender per enabled channel.
func New(settings config.NotificationSettings, opts ...Option) *Notifier {
	n := &Notifier{logger: zap.NewNop()}
	if settings.Slack.Enabled {
		n.senders = append(n.senders, NewSlack(settings.Slack))
	}
	if settings.Email.Enabled {
		n.senders = append(n.senders, NewEmail(settings.Email))
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Notify sends s through every sender. One sender's failure does not stop
// the others; failures are returned by sender name.
func (n *Notifier) Notify(ctx context.Context, s Summary, detailed bool) map[string]error {
	failures := map[string]error{}
	for _, sender := range n.senders {
		if err := sender.Send(ctx, s, detailed); err != nil {
			n.logger.Error("notification failed", zap.String("sender", sender.Name()), zap.Error(err))
			failures[sender.Name()] = err
			continue
		}
		n.logger.Info("notification sent", zap.String("sender", sender.Name()))
	}
	return failures
}
